// Package status renders the operator's view of a project: daemon health
// over the control socket plus a filesystem view of the exchange
// directories that works even while the daemon is down.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hqmon/argusd/internal/transport"
	"github.com/hqmon/argusd/internal/uds"
	atomicyaml "github.com/hqmon/argusd/internal/yaml"
)

type Report struct {
	Daemon   DaemonStatus     `json:"daemon"`
	Exchange []ExchangeStatus `json:"exchange,omitempty"`
}

type DaemonStatus struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
	Project       string `json:"project,omitempty"`
	UptimeSec     int64  `json:"uptime_sec,omitempty"`
	OpenOrders    int    `json:"open_orders"`
	TotalOrders   int64  `json:"total_orders"`
	ActiveConfigs int    `json:"active_configs"`
	Captures      int64  `json:"captures"`
}

// ExchangeStatus is the document backlog of one exchange directory.
type ExchangeStatus struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

// Run prints the project status, human-readable or JSON.
func Run(argusDir string, jsonOutput bool) error {
	report := Report{
		Daemon:   checkDaemon(filepath.Join(argusDir, uds.DefaultSocketName)),
		Exchange: exchangeDepths(argusDir),
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

// Metrics fetches the daemon counters and prints them.
func Metrics(argusDir string, jsonOutput bool) error {
	client := uds.NewClient(filepath.Join(argusDir, uds.DefaultSocketName))
	resp, err := client.SendCommand("metrics", nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("metrics: [%s] %s", resp.Error.Code, resp.Error.Message)
	}

	if jsonOutput {
		var buf map[string]interface{}
		if err := json.Unmarshal(resp.Data, &buf); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(buf)
	}

	var m metricsView
	if err := json.Unmarshal(resp.Data, &m); err != nil {
		return err
	}
	printMetrics(m)
	return nil
}

// statusView mirrors the daemon's status payload.
type statusView struct {
	PID           int    `json:"pid"`
	Project       string `json:"project"`
	UptimeSec     int64  `json:"uptime_sec"`
	OpenOrders    int    `json:"open_orders"`
	TotalOrders   int64  `json:"total_orders"`
	ActiveConfigs int    `json:"active_configs"`
	Captures      int64  `json:"captures"`
}

// metricsView mirrors the daemon's metrics payload.
type metricsView struct {
	UptimeSec          int64 `json:"uptime_sec"`
	OrdersSubmitted    int64 `json:"orders_submitted"`
	ResponsesProcessed int64 `json:"responses_processed"`
	DecodeFailures     int64 `json:"decode_failures"`
	ScheduleExecutions int64 `json:"schedule_executions"`
	ScheduleFailures   int64 `json:"schedule_failures"`
	CapturesReceived   int64 `json:"captures_received"`
	CapturesUnparsed   int64 `json:"captures_unparsed"`
	CaptureReadErrors  int64 `json:"capture_read_errors"`
	CaptureBytes       int64 `json:"capture_bytes"`
	TotalOrders        int64 `json:"total_orders"`
	TotalCaptures      int64 `json:"total_captures"`
	Retention          struct {
		LastSweep   string  `json:"last_sweep"`
		Sweeps      int64   `json:"sweeps"`
		DirsPruned  int64   `json:"dirs_pruned"`
		RowsDeleted int64   `json:"rows_deleted"`
		DiskUsedPct float64 `json:"disk_used_pct"`
	} `json:"retention"`
}

func checkDaemon(sockPath string) DaemonStatus {
	client := uds.NewClient(sockPath)
	resp, err := client.SendCommand("status", nil)
	if err != nil || !resp.Success {
		return DaemonStatus{Running: false}
	}

	var view statusView
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		return DaemonStatus{Running: true}
	}
	return DaemonStatus{
		Running:       true,
		PID:           view.PID,
		Project:       view.Project,
		UptimeSec:     view.UptimeSec,
		OpenOrders:    view.OpenOrders,
		TotalOrders:   view.TotalOrders,
		ActiveConfigs: view.ActiveConfigs,
		Captures:      view.Captures,
	}
}

// exchangeDepths counts the exchange documents sitting in the inbox and
// outbox. Only filenames matching the exchange grammar count; lock files
// and editor droppings in a mounted share do not.
func exchangeDepths(argusDir string) []ExchangeStatus {
	inbox := filepath.Join(argusDir, "exchange", "inbox")
	outbox := filepath.Join(argusDir, "exchange", "outbox")
	if cfg, err := atomicyaml.LoadConfig(filepath.Join(argusDir, "config.yaml")); err == nil {
		inbox = resolveDir(argusDir, cfg.Exchange.InboxDir, inbox)
		outbox = resolveDir(argusDir, cfg.Exchange.OutboxDir, outbox)
	}

	var depths []ExchangeStatus
	for _, dir := range []struct {
		name string
		path string
	}{
		{"inbox", inbox},
		{"outbox", outbox},
	} {
		entries, err := os.ReadDir(dir.path)
		if err != nil {
			continue
		}
		count := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, _, ok := transport.ParseExchangeFilename(entry.Name()); ok {
				count++
			}
		}
		depths = append(depths, ExchangeStatus{Name: dir.name, Documents: count})
	}
	return depths
}

func resolveDir(argusDir, configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(argusDir, configured)
}

func printReport(r Report) {
	if r.Daemon.Running {
		fmt.Printf("Daemon: running (pid %d)\n", r.Daemon.PID)
		if r.Daemon.Project != "" {
			fmt.Printf("Project: %s\n", r.Daemon.Project)
		}
		fmt.Printf("Uptime: %s\n", formatUptime(r.Daemon.UptimeSec))
		fmt.Println()
		fmt.Printf("  %-16s  %d\n", "open orders", r.Daemon.OpenOrders)
		fmt.Printf("  %-16s  %d\n", "total orders", r.Daemon.TotalOrders)
		fmt.Printf("  %-16s  %d\n", "active schedules", r.Daemon.ActiveConfigs)
		fmt.Printf("  %-16s  %d\n", "captures", r.Daemon.Captures)
	} else {
		fmt.Println("Daemon: stopped")
	}

	if len(r.Exchange) > 0 {
		fmt.Println("\nExchange:")
		fmt.Printf("  %-8s  %9s\n", "DIR", "DOCUMENTS")
		for _, e := range r.Exchange {
			fmt.Printf("  %-8s  %9d\n", e.Name, e.Documents)
		}
	}
}

func printMetrics(m metricsView) {
	fmt.Printf("Uptime: %s\n\n", formatUptime(m.UptimeSec))
	fmt.Println("Orders:")
	fmt.Printf("  %-20s  %d\n", "submitted", m.OrdersSubmitted)
	fmt.Printf("  %-20s  %d\n", "responses processed", m.ResponsesProcessed)
	fmt.Printf("  %-20s  %d\n", "decode failures", m.DecodeFailures)
	fmt.Printf("  %-20s  %d\n", "total", m.TotalOrders)
	fmt.Println("\nScheduler:")
	fmt.Printf("  %-20s  %d\n", "executions", m.ScheduleExecutions)
	fmt.Printf("  %-20s  %d\n", "failures", m.ScheduleFailures)
	fmt.Println("\nCaptures:")
	fmt.Printf("  %-20s  %d\n", "received", m.CapturesReceived)
	fmt.Printf("  %-20s  %d\n", "unparsed", m.CapturesUnparsed)
	fmt.Printf("  %-20s  %d\n", "read errors", m.CaptureReadErrors)
	fmt.Printf("  %-20s  %d\n", "bytes", m.CaptureBytes)
	fmt.Printf("  %-20s  %d\n", "stored", m.TotalCaptures)
	fmt.Println("\nRetention:")
	fmt.Printf("  %-20s  %d\n", "sweeps", m.Retention.Sweeps)
	fmt.Printf("  %-20s  %d\n", "dirs pruned", m.Retention.DirsPruned)
	fmt.Printf("  %-20s  %d\n", "rows deleted", m.Retention.RowsDeleted)
	fmt.Printf("  %-20s  %.1f%%\n", "disk used", m.Retention.DiskUsedPct*100)
}

func formatUptime(sec int64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%dm", sec/3600, (sec%3600)/60)
}
