package ping

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pgtide/pgtide/cmd/util"
	"github.com/pgtide/pgtide/wire/buffer"
	"github.com/pgtide/pgtide/wire/common"
	"github.com/pgtide/pgtide/wire/conn"
	"github.com/pgtide/pgtide/wire/loop"
	"github.com/pgtide/pgtide/wire/startup"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PingCmd performs a full startup handshake against a backend and
	// reports the parameters the server announced.
	PingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Connect to a backend server and perform the startup handshake",
		Long: `Connect to a backend server, run the startup exchange (including
cleartext password authentication if requested) and print the parameters
the server reports. With --count > 1 the handshake is repeated and latency
percentiles are printed.`,
		RunE: runPing,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common connection flags
	util.SetupConnectionFlags(PingCmd)

	key := "count"
	PingCmd.Flags().Int(key, 1, util.WrapString("How many handshakes to perform"))

	key = "dial-timeout"
	PingCmd.Flags().Int(key, 10, util.WrapString("Overall dial timeout in seconds (retries with exponential backoff within this window)"))

	key = "log-level"
	PingCmd.PersistentFlags().String(key, "warning", util.WrapString("Log level (debug, info, warning, error)"))
}

func runPing(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	common.InitLoggers(viper.GetString("log-level"))

	cfg := util.GetConnectionConfig()
	if cfg.User == "" {
		return fmt.Errorf("no user specified (use --user or PGTIDE_USER)")
	}

	count := viper.GetInt("count")
	if count < 1 {
		count = 1
	}

	fmt.Printf("pinging %s%s\n", cfg.Endpoint(), cfg.String())

	looper := loop.NewLooper()
	defer looper.Close()

	pool := buffer.NewPool(buffer.NewHeapAllocator())
	latencies := gometrics.NewHistogram(gometrics.NewUniformSample(count))

	for i := 0; i < count; i++ {
		start := time.Now()
		params, err := handshake(looper, pool, cfg)
		if err != nil {
			fmt.Printf("handshake %d/%d failed: %v\n", i+1, count, err)
			os.Exit(1)
		}
		latencies.Update(time.Since(start).Nanoseconds())

		// only the first round prints the reported parameters
		if i == 0 {
			fmt.Println("\nSERVER PARAMETERS")
			for name, value := range params {
				fmt.Printf("  %-22s: %s\n", name, value)
			}
		}
	}

	if count > 1 {
		ps := latencies.Percentiles([]float64{0.5, 0.95, 0.99})
		fmt.Println("\nLATENCY")
		fmt.Printf("  %-22s: %d\n", "Handshakes", count)
		fmt.Printf("  %-22s: %s\n", "Min", time.Duration(latencies.Min()))
		fmt.Printf("  %-22s: %s\n", "p50", time.Duration(int64(ps[0])))
		fmt.Printf("  %-22s: %s\n", "p95", time.Duration(int64(ps[1])))
		fmt.Printf("  %-22s: %s\n", "p99", time.Duration(int64(ps[2])))
		fmt.Printf("  %-22s: %s\n", "Max", time.Duration(latencies.Max()))
	}

	fmt.Println("\nok")
	return nil
}

// handshake dials the backend, runs one startup exchange and terminates the
// session afterwards.
func handshake(looper *loop.Looper, pool *buffer.Pool, cfg *common.ConnectionConfig) (map[string]string, error) {
	sock, err := dial(cfg.Endpoint())
	if err != nil {
		return nil, err
	}

	ch, err := loop.NewNetChannel(sock)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	hs := startup.NewHandshake()
	c := conn.New(cfg, pool, nil)
	if err := c.Connect(hs); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := c.Attach(looper, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	defer c.Close()

	if err := <-hs.Done(); err != nil {
		return nil, err
	}

	_ = c.Enqueue(startup.Terminate{})

	// the server closes its end after the terminate message; wait for the
	// teardown so the deferred Close cannot race the final flush
	select {
	case <-c.Done():
	case <-time.After(time.Second):
	}
	return hs.ServerParameters(), nil
}

// dial connects with exponential backoff until the overall timeout elapses.
func dial(endpoint string) (net.Conn, error) {
	deadline := time.Now().Add(time.Duration(viper.GetInt("dial-timeout")) * time.Second)
	b := &backoff.Backoff{
		Min:    50 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	for {
		sock, err := net.DialTimeout("tcp", endpoint, time.Until(deadline))
		if err == nil {
			return sock, nil
		}
		d := b.Duration()
		if time.Now().Add(d).After(deadline) {
			return nil, fmt.Errorf("dial %s: %v", endpoint, err)
		}
		time.Sleep(d)
	}
}
