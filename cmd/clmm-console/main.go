// clmm-console is an interactive sandbox around one in-memory pair. It is
// meant for exploring how mints, burns and swaps move the price, the tick
// table and the fee ledgers.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clmm-go/engine"
	"github.com/defistate/clmm-go/tickmath"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pairAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	traderAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

// session owns the pair and the trader's wallet for one console run.
type session struct {
	pair   *engine.Pair
	token0 *engine.MemToken
	token1 *engine.MemToken
	trader *engine.Payer
	events *engine.EventLog
	now    uint32
}

func newSession() (*session, error) {
	token0 := engine.NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	token1 := engine.NewMemToken(common.HexToAddress("0x0000000000000000000000000000000000000002"))
	funds := uint256.MustFromDecimal("1000000000000000000000000000000")
	token0.Mint(traderAddr, funds)
	token1.Mint(traderAddr, funds)

	events := engine.NewEventLog(64)
	pair, err := engine.New(engine.Config{
		Token0:      token0,
		Token1:      token1,
		PairAddress: pairAddr,
		Owner:       ownerAddr,
		Fee:         3000,
		TickSpacing: 60,
		Sink:        events,
		Metrics:     engine.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		return nil, err
	}
	if err := pair.SetTime(0); err != nil {
		return nil, err
	}

	return &session{
		pair:   pair,
		token0: token0,
		token1: token1,
		trader: &engine.Payer{Account: traderAddr, Token0: token0, Token1: token1, Pair: pairAddr},
		events: events,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession()
	if err != nil {
		fmt.Println(Red + "Failed to start: " + err.Error() + Reset)
		os.Exit(1)
	}

	fmt.Println(Green + "Starting CLMM Console..." + Reset)
	runConsole(ctx, s)
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, s *session) {
	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)

		handleCommand(ctx, input, s, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "CLMM PAIR CONSOLE" + Reset + Gray + " | fee 0.30% | spacing 60" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Pair Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Initialize %s(set starting price)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Mint       %s(add liquidity)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Burn       %s(remove liquidity)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Collect    %s(withdraw owed tokens)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Swap       %s(exact input)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s7.%s Ticks & Positions\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Advance Time\n", Cyan, Reset)
	fmt.Printf(" %s9.%s Recent Events\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(ctx context.Context, input string, s *session, reader *bufio.Reader) {
	switch input {
	case "1":
		printStatus(s)
	case "2":
		initialize(ctx, s, reader)
	case "3":
		mint(ctx, s, reader)
	case "4":
		burn(ctx, s, reader)
	case "5":
		collect(ctx, s, reader)
	case "6":
		swap(ctx, s, reader)
	case "7":
		printTables(s)
	case "8":
		advanceTime(s, reader)
	case "9":
		printEvents(s)
	case "h":
		printHelp()
	case "q":
		fmt.Println(Yellow + "Bye." + Reset)
		os.Exit(0)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printStatus(s *session) {
	header("PAIR STATUS")
	slot := s.pair.Slot0()
	if !slot.Unlocked {
		fmt.Println(Yellow + "Pair is not initialized yet. Use option 2 first." + Reset)
		return
	}

	fmt.Printf("%sPrice (token1/token0):%s %s\n", Bold, Reset, s.pair.SpotPrice().Text('f', 8))
	fmt.Printf("%sSqrtPriceX96:%s          %s\n", Bold, Reset, slot.SqrtPriceX96.Dec())
	fmt.Printf("%sTick:%s                  %d\n", Bold, Reset, slot.Tick)
	fmt.Printf("%sActive liquidity:%s      %s\n", Bold, Reset, s.pair.Liquidity().Dec())

	r0, r1 := s.pair.VirtualReserves()
	fmt.Printf("%sVirtual reserves:%s      %s / %s\n", Bold, Reset, r0.String(), r1.String())

	tc, now := s.pair.Cumulatives()
	fmt.Printf("%sTick cumulative:%s       %d @ t=%d\n", Bold, Reset, tc, now)

	f0, f1 := s.pair.ProtocolFees()
	fmt.Printf("%sProtocol fees:%s         %s / %s\n", Bold, Reset, f0.Dec(), f1.Dec())
}

func initialize(ctx context.Context, s *session, reader *bufio.Reader) {
	price, ok := readUint256(reader, "Starting sqrtPriceX96 (1:1 = 79228162514264337593543950336)")
	if !ok {
		return
	}
	if err := s.pair.Initialize(ctx, traderAddr, price); err != nil {
		fmt.Println(Red + "Initialize failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Initialized at tick %d.\n"+Reset, s.pair.Slot0().Tick)
}

func mint(ctx context.Context, s *session, reader *bufio.Reader) {
	lower, upper, ok := readRange(reader)
	if !ok {
		return
	}
	amount, ok := readUint256(reader, "Liquidity amount")
	if !ok {
		return
	}
	a0, a1, err := s.pair.Mint(ctx, traderAddr, traderAddr, lower, upper, amount)
	if err != nil {
		fmt.Println(Red + "Mint failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Minted. Deposited %s token0, %s token1.\n"+Reset, a0, a1)
}

func burn(ctx context.Context, s *session, reader *bufio.Reader) {
	lower, upper, ok := readRange(reader)
	if !ok {
		return
	}
	amount, ok := readUint256(reader, "Liquidity amount")
	if !ok {
		return
	}
	a0, a1, err := s.pair.Burn(ctx, traderAddr, lower, upper, amount)
	if err != nil {
		fmt.Println(Red + "Burn failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Burned. %s token0 and %s token1 are now collectible.\n"+Reset, a0, a1)
}

func collect(ctx context.Context, s *session, reader *bufio.Reader) {
	lower, upper, ok := readRange(reader)
	if !ok {
		return
	}
	max := new(uint256.Int).Neg(uint256.NewInt(1))
	c0, c1, err := s.pair.Collect(ctx, traderAddr, lower, upper, traderAddr, max, max)
	if err != nil {
		fmt.Println(Red + "Collect failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Collected %s token0, %s token1.\n"+Reset, c0.Dec(), c1.Dec())
}

func swap(ctx context.Context, s *session, reader *bufio.Reader) {
	fmt.Print(Bold + "Direction [0 = sell token0, 1 = sell token1]: " + Reset)
	dir, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	amount, ok := readUint256(reader, "Input amount")
	if !ok {
		return
	}

	var a0, a1 fmt.Stringer
	switch strings.TrimSpace(dir) {
	case "0":
		a0, a1, err = s.pair.SwapExact0For1(ctx, traderAddr, amount, s.trader, nil)
	case "1":
		a0, a1, err = s.pair.SwapExact1For0(ctx, traderAddr, amount, s.trader, nil)
	default:
		fmt.Println(Red + "Unknown direction." + Reset)
		return
	}
	if err != nil {
		fmt.Println(Red + "Swap failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Swapped. Deltas: %s token0, %s token1. New tick: %d.\n"+Reset,
		a0, a1, s.pair.Slot0().Tick)
}

func printTables(s *session) {
	header("INITIALIZED TICKS")
	snap := s.pair.Snapshot()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TICK\tGROSS\tNET\tSECONDS OUTSIDE\t")
	fmt.Fprintln(w, "----\t-----\t---\t---------------\t")
	for i, tick := range snap.TickIndices {
		info := snap.Ticks[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t\n", tick, info.LiquidityGross.Dec(), info.LiquidityNet.String(), info.SecondsOutside)
	}
	w.Flush()

	header("POSITIONS")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "OWNER\tRANGE\tLIQUIDITY\tOWED0\tOWED1\t")
	fmt.Fprintln(w, "-----\t-----\t---------\t-----\t-----\t")
	for i, key := range snap.PositionKeys {
		pos := snap.Positions[i]
		owner := key.Owner.Hex()
		owner = owner[:6] + "..." + owner[len(owner)-4:]
		fmt.Fprintf(w, "%s\t[%d, %d)\t%s\t%s\t%s\t\n",
			owner, key.TickLower, key.TickUpper, pos.Liquidity.Dec(), pos.FeesOwed0.Dec(), pos.FeesOwed1.Dec())
	}
	w.Flush()
}

func printEvents(s *session) {
	header("RECENT EVENTS")
	all := s.events.All()
	if len(all) == 0 {
		fmt.Println(Gray + "No events yet." + Reset)
		return
	}
	for _, e := range all {
		encoded, err := json.Marshal(e)
		if err != nil {
			fmt.Printf("%s%-12s%s <unencodable: %v>\n", Yellow, e.Name(), Reset, err)
			continue
		}
		fmt.Printf("%s%-12s%s %s\n", Yellow, e.Name(), Reset, encoded)
	}
}

func advanceTime(s *session, reader *bufio.Reader) {
	fmt.Print(Bold + "Seconds to advance: " + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	secs, err := strconv.ParseUint(strings.TrimSpace(input), 10, 32)
	if err != nil {
		fmt.Println(Red + "Not a number." + Reset)
		return
	}
	s.now += uint32(secs)
	if err := s.pair.SetTime(s.now); err != nil {
		fmt.Println(Red + "Failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Clock is now t=%d.\n"+Reset, s.now)
}

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("CONCENTRATED LIQUIDITY PAIR")
	fmt.Println(Bold + "Concept: Liquidity Between Two Prices" + Reset)
	fmt.Println("Every position provides liquidity only inside its tick range. The pair")
	fmt.Println("tracks the sum of all in-range liquidity and moves the price along the")
	fmt.Println("curve x*y = L^2 as swaps consume one token for the other.")
	fmt.Println("")

	fmt.Println(Bold + "1. TICKS" + Reset)
	fmt.Println("   Prices are quantized: tick t corresponds to price 1.0001^t.")
	fmt.Printf("   Usable ticks are multiples of the spacing in [%d, %d].\n",
		tickmath.MinUsableTick(60), tickmath.MaxUsableTick(60))
	fmt.Println("   Crossing an initialized tick adds or removes its net liquidity.")
	fmt.Println("")

	fmt.Println(Bold + "2. FEES" + Reset)
	fmt.Println("   Each swap charges the fee on its input. Fees accumulate per unit of")
	fmt.Println("   liquidity; a position's share materializes when it is next touched.")
	fmt.Println("   Burned principal and fees are both withdrawn via " + Cyan + "Collect" + Reset + ".")
	fmt.Println("")

	fmt.Println(Bold + "3. THE TRADER" + Reset)
	fmt.Println("   This console acts as a single funded account " + Gray + "(" + traderAddr.Hex() + ")" + Reset)
	fmt.Println("   that owns every position and pays for every swap.")
}

func readRange(reader *bufio.Reader) (lower, upper int, ok bool) {
	fmt.Print(Bold + "Tick range as \"lower upper\" (e.g. -60 60): " + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return 0, 0, false
	}
	fields := strings.Fields(input)
	if len(fields) != 2 {
		fmt.Println(Red + "Expected two ticks." + Reset)
		return 0, 0, false
	}
	lower, err = strconv.Atoi(fields[0])
	if err == nil {
		upper, err = strconv.Atoi(fields[1])
	}
	if err != nil {
		fmt.Println(Red + "Not a tick: " + err.Error() + Reset)
		return 0, 0, false
	}
	return lower, upper, true
}

func readUint256(reader *bufio.Reader, prompt string) (*uint256.Int, bool) {
	fmt.Print(Bold + prompt + ": " + Reset)
	input, err := reader.ReadString('\n')
	if err != nil {
		return nil, false
	}
	v, err := uint256.FromDecimal(strings.TrimSpace(input))
	if err != nil {
		fmt.Println(Red + "Not a decimal amount: " + err.Error() + Reset)
		return nil, false
	}
	return v, true
}
