package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sliqtransport/sliq/ccadapter"
	"github.com/sliqtransport/sliq/conn"
	"github.com/sliqtransport/sliq/pkg/logx"
	"github.com/sliqtransport/sliq/pkg/metrics"
	"github.com/sliqtransport/sliq/pkg/sliqerr"
	"github.com/sliqtransport/sliq/stream"
	"github.com/sliqtransport/sliq/wire"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "sliqd",
		Short:   "SLIQ reference transport daemon",
		Version: version,
	}
	root.AddCommand(newServeCmd(), newDialCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var listenAddr string
	var metricsAddr string
	var ccList string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for SLIQ connections and log received stream data",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.Banner("SLIQ Transport Daemon", version)

			collectors := metrics.NewCollectors()
			reg := prometheus.NewRegistry()
			collectors.MustRegister(reg)
			serveMetrics(metricsAddr, reg)

			ln, err := conn.Listen(listenAddr, conn.Config{
				SupportedCC: supportedCCSet(ccList),
				Metrics:     collectors,
			})
			if err != nil {
				return fmt.Errorf("listen %s: %w", listenAddr, err)
			}
			logx.Info("listening on %s", listenAddr)

			go acceptLoop(ln)

			waitForSignal()
			logx.Warn("shutting down")
			return ln.Close()
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:7777", "UDP address to listen on")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on (empty disables)")
	cmd.Flags().StringVar(&ccList, "cc", "fixedrate", "comma-separated list of accepted CC algorithms")
	return cmd
}

func newDialCmd() *cobra.Command {
	var remoteAddr string
	var ccList string
	var message string

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a SLIQ peer and send one message on stream 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := conn.Dial(remoteAddr, conn.Config{
				OfferedCC: offeredCCList(ccList),
			})
			if err != nil {
				return fmt.Errorf("dial %s: %w", remoteAddr, err)
			}
			defer c.Stop()

			if !waitForConfirm(c, 5*time.Second) {
				return fmt.Errorf("sliq: handshake did not confirm against %s", remoteAddr)
			}
			logx.Info("connected to %s", remoteAddr)

			s, err := c.CreateStream(stream.Config{
				ID:             1,
				Priority:       0,
				Ordered:        true,
				Reliable:       true,
				RexmitLimit:    5,
				FECGroupSize:   4,
				FECRounds:      3,
				FECTargetPrecv: 0.99,
			})
			if err != nil {
				return fmt.Errorf("create stream: %w", err)
			}
			if err := s.Send([]byte(message)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			if err := s.Close(); err != nil {
				return fmt.Errorf("close stream: %w", err)
			}

			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				<-ticker.C
				c.Pack()
			}
			c.Close(sliqerr.CloseNormal)
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteAddr, "addr", "127.0.0.1:7777", "peer address to dial")
	cmd.Flags().StringVar(&ccList, "cc", "fixedrate", "comma-separated list of offered CC algorithms, in preference order")
	cmd.Flags().StringVar(&message, "message", "hello from sliqd", "payload to send on stream 1")
	return cmd
}

func acceptLoop(ln *conn.Listener) {
	for {
		c := ln.Accept()
		go func(c *conn.Connection) {
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for range ticker.C {
				c.Pack()
			}
		}(c)
		go func(c *conn.Connection) {
			for {
				streamID, payload, ok := c.Recv()
				if !ok {
					return
				}
				logx.Info("stream %d: %d bytes: %q", streamID, len(payload), payload)
			}
		}(c)
	}
}

func waitForConfirm(c *conn.Connection, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		c.Pack()
		if c.Confirmed() {
			return true
		}
		<-ticker.C
	}
	return false
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("metrics server: %v", err)
		}
	}()
	logx.Info("metrics on http://%s/metrics", addr)
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func supportedCCSet(csv string) map[uint8]bool {
	supported := make(map[uint8]bool)
	for _, t := range splitCSV(csv) {
		supported[ccTypeByName(t)] = true
	}
	return supported
}

func offeredCCList(csv string) []wire.CCAlgEntry {
	var out []wire.CCAlgEntry
	for _, t := range splitCSV(csv) {
		out = append(out, wire.CCAlgEntry{Type: wire.CCType(ccTypeByName(t))})
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func ccTypeByName(name string) uint8 {
	switch name {
	case "fixedrate":
		return ccadapter.TypeFixedRate
	case "cubic":
		return ccadapter.TypeCubicBytes
	case "reno":
		return ccadapter.TypeRenoBytes
	case "copa":
		return ccadapter.TypeCopaM
	default:
		return ccadapter.TypeNone
	}
}
