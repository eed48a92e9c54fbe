package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hqmon/argusd/internal/daemon"
	"github.com/hqmon/argusd/internal/model"
	"github.com/hqmon/argusd/internal/setup"
	"github.com/hqmon/argusd/internal/status"
	"github.com/hqmon/argusd/internal/uds"
	atomicyaml "github.com/hqmon/argusd/internal/yaml"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "setup":
		runSetup(os.Args[2:])
	case "down":
		runDown(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "metrics":
		runMetrics(os.Args[2:])
	case "order":
		runOrder(os.Args[2:])
	case "snapshot":
		runSnapshot(os.Args[2:])
	case "amm":
		runAMM(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "version":
		fmt.Printf("argusd %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runOrder(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: argusd order <submit|get|list> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "submit":
		runOrderSubmit(args[1:])
	case "get":
		runOrderGet(args[1:])
	case "list":
		runOrderList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown order subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: argusd order <submit|get|list> [options]")
		os.Exit(1)
	}
}

func runAMM(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: argusd amm <list|create|get|start|pause|stop|run> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		sendCommand("amm_list", nil)
	case "create":
		runAMMCreate(args[1:])
	case "get":
		runAMMConfigCommand("amm_get", args[1:])
	case "start":
		runAMMConfigCommand("amm_start", args[1:])
	case "pause":
		runAMMConfigCommand("amm_pause", args[1:])
	case "stop":
		runAMMConfigCommand("amm_stop", args[1:])
	case "run":
		runAMMConfigCommand("amm_execute", args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown amm subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: argusd amm <list|create|get|start|pause|stop|run> [options]")
		os.Exit(1)
	}
}

func runDaemon(_ []string) {
	argusDir := findArgusDir()
	if argusDir == "" {
		fmt.Fprintln(os.Stderr, "error: .argusd/ directory not found. Run 'argusd setup <dir>' first.")
		os.Exit(1)
	}

	cfg, err := loadDaemonConfig(argusDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(argusDir, *cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

// loadDaemonConfig reads config.yaml, recovering a corrupt file from its
// backup (or the embedded template) before giving up. The daemon keeps
// starting after a crash that half-wrote the config.
func loadDaemonConfig(argusDir string) (*model.Config, error) {
	path := filepath.Join(argusDir, "config.yaml")
	cfg, err := atomicyaml.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}

	fmt.Fprintf(os.Stderr, "config.yaml unreadable (%v), attempting recovery\n", err)
	fallback, fbErr := setup.DefaultConfigBytes()
	if fbErr != nil {
		fallback = nil
	}
	if recErr := atomicyaml.RecoverConfig(argusDir, path, fallback); recErr != nil {
		return nil, fmt.Errorf("recover config: %w", recErr)
	}
	return atomicyaml.LoadConfig(path)
}

func runSetup(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: argusd setup <project_dir> [--project <name>]")
		os.Exit(1)
	}

	dir := args[0]
	rest := args[1:]
	var projectName string
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--project":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "--project requires a value")
				os.Exit(1)
			}
			i++
			projectName = rest[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd setup <project_dir> [--project <name>]\n", rest[i])
			os.Exit(1)
		}
	}

	if err := setup.Run(dir, projectName); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized %s/ in %s\n", setup.DirName, absDir)
}

func runDown(_ []string) {
	argusDir := findArgusDir()
	if argusDir == "" {
		fmt.Fprintln(os.Stderr, "error: .argusd/ directory not found. Run 'argusd setup <dir>' first.")
		os.Exit(1)
	}

	client := uds.NewClient(filepath.Join(argusDir, uds.DefaultSocketName))
	resp, err := client.SendCommand("shutdown", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "down: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		code := ""
		msg := "unknown error"
		if resp.Error != nil {
			code = resp.Error.Code
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "down failed [%s]: %s\n", code, msg)
		os.Exit(1)
	}
	fmt.Println("shutdown requested")
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd status [--json]\n", a)
			os.Exit(1)
		}
	}

	argusDir := findArgusDir()
	if argusDir == "" {
		fmt.Fprintln(os.Stderr, "error: .argusd/ directory not found. Run 'argusd setup <dir>' first.")
		os.Exit(1)
	}

	if err := status.Run(argusDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runMetrics(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd metrics [--json]\n", a)
			os.Exit(1)
		}
	}

	argusDir := findArgusDir()
	if argusDir == "" {
		fmt.Fprintln(os.Stderr, "error: .argusd/ directory not found. Run 'argusd setup <dir>' first.")
		os.Exit(1)
	}

	if err := status.Metrics(argusDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
		os.Exit(1)
	}
}

func runOrderSubmit(args []string) {
	var orderType, name, task, detector, demodulation, station, signalPath string
	var freqSingle, freqLow, freqHigh, freqStep, bandwidth, attenuation float64
	var freqList []float64
	var measureTime int
	var listName, resultOption, country, city, service, callSign, licensee string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--type":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--type requires a value")
				os.Exit(1)
			}
			i++
			orderType = args[i]
		case "--name":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--name requires a value")
				os.Exit(1)
			}
			i++
			name = args[i]
		case "--task":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--task requires a value")
				os.Exit(1)
			}
			i++
			task = args[i]
		case "--freq":
			freqSingle = floatFlag(args, &i)
		case "--freq-low":
			freqLow = floatFlag(args, &i)
		case "--freq-high":
			freqHigh = floatFlag(args, &i)
		case "--freq-step":
			freqStep = floatFlag(args, &i)
		case "--freq-list":
			freqList = append(freqList, floatFlag(args, &i))
		case "--bandwidth":
			bandwidth = floatFlag(args, &i)
		case "--attenuation":
			attenuation = floatFlag(args, &i)
		case "--detector":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--detector requires a value")
				os.Exit(1)
			}
			i++
			detector = args[i]
		case "--demodulation":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--demodulation requires a value")
				os.Exit(1)
			}
			i++
			demodulation = args[i]
		case "--measure-time":
			measureTime = intFlag(args, &i)
		case "--station":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--station requires a value")
				os.Exit(1)
			}
			i++
			station = args[i]
		case "--signal-path":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--signal-path requires a value")
				os.Exit(1)
			}
			i++
			signalPath = args[i]
		case "--list-name":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--list-name requires a value")
				os.Exit(1)
			}
			i++
			listName = args[i]
		case "--result-option":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--result-option requires a value")
				os.Exit(1)
			}
			i++
			resultOption = args[i]
		case "--country":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--country requires a value")
				os.Exit(1)
			}
			i++
			country = args[i]
		case "--city":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--city requires a value")
				os.Exit(1)
			}
			i++
			city = args[i]
		case "--service":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--service requires a value")
				os.Exit(1)
			}
			i++
			service = args[i]
		case "--call-sign":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--call-sign requires a value")
				os.Exit(1)
			}
			i++
			callSign = args[i]
		case "--licensee":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--licensee requires a value")
				os.Exit(1)
			}
			i++
			licensee = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			fmt.Fprintln(os.Stderr, "usage: argusd order submit --type <OR|GSS|GSP|IFL|ITL> [options]")
			os.Exit(1)
		}
	}

	if orderType == "" {
		fmt.Fprintln(os.Stderr, "--type is required")
		fmt.Fprintln(os.Stderr, "usage: argusd order submit --type <OR|GSS|GSP|IFL|ITL> [options]")
		os.Exit(1)
	}

	params := map[string]any{
		"type": orderType,
	}
	if name != "" {
		params["name"] = name
	}

	switch orderType {
	case "OR":
		if task == "" {
			fmt.Fprintln(os.Stderr, "--task is required for type=OR")
			os.Exit(1)
		}
		freq, err := buildFrequency(freqSingle, freqLow, freqHigh, freqStep, freqList)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		m := map[string]any{
			"task":      task,
			"frequency": freq,
		}
		if bandwidth > 0 {
			m["if_bandwidth"] = bandwidth
		}
		if attenuation > 0 {
			m["rf_attenuation"] = attenuation
		}
		if detector != "" {
			m["detector"] = detector
		}
		if demodulation != "" {
			m["demodulation"] = demodulation
		}
		if measureTime > 0 {
			m["measure_time_ms"] = measureTime
		}
		if station != "" {
			m["station_name"] = station
		}
		if signalPath != "" {
			m["signal_path"] = signalPath
		}
		params["measurement"] = m
	case "IFL", "ITL":
		q := map[string]any{}
		if listName != "" {
			q["list_name"] = listName
		}
		if resultOption != "" {
			q["result_option"] = resultOption
		}
		if freqLow > 0 || freqHigh > 0 || freqSingle > 0 || len(freqList) > 0 {
			freq, err := buildFrequency(freqSingle, freqLow, freqHigh, freqStep, freqList)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
			q["frequency"] = freq
		}
		if country != "" {
			q["country"] = country
		}
		if city != "" {
			q["city"] = city
		}
		if service != "" {
			q["service"] = service
		}
		if callSign != "" {
			q["call_sign"] = callSign
		}
		if licensee != "" {
			q["licensee"] = licensee
		}
		if len(q) > 0 {
			params["list_query"] = q
		}
	}

	sendCommand("order_submit", params)
}

// buildFrequency maps the frequency flags onto the single/range/list union.
// Exactly one variant may be selected.
func buildFrequency(single, low, high, step float64, list []float64) (map[string]any, error) {
	set := 0
	if single > 0 {
		set++
	}
	if low > 0 || high > 0 || step > 0 {
		set++
	}
	if len(list) > 0 {
		set++
	}
	if set == 0 {
		return nil, fmt.Errorf("a frequency is required: --freq, --freq-low/--freq-high/--freq-step, or --freq-list")
	}
	if set > 1 {
		return nil, fmt.Errorf("--freq, --freq-low/--freq-high/--freq-step, and --freq-list are mutually exclusive")
	}

	switch {
	case single > 0:
		return map[string]any{"mode": "S", "single": single}, nil
	case len(list) > 0:
		return map[string]any{"mode": "L", "list": list}, nil
	default:
		return map[string]any{
			"mode":       "R",
			"range_low":  low,
			"range_high": high,
			"step":       step,
		}, nil
	}
}

func runOrderGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: argusd order get <order_id>")
		os.Exit(1)
	}
	sendCommand("order_get", map[string]any{"order_id": args[0]})
}

func runOrderList(args []string) {
	var state string
	var limit int

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--state":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--state requires a value")
				os.Exit(1)
			}
			i++
			state = args[i]
		case "--limit":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--limit requires a value")
				os.Exit(1)
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --limit value: %s\n", args[i])
				os.Exit(1)
			}
			limit = n
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd order list [--state <state>] [--limit <n>]\n", args[i])
			os.Exit(1)
		}
	}

	params := map[string]any{}
	if state != "" {
		params["state"] = state
	}
	if limit > 0 {
		params["limit"] = limit
	}
	sendCommand("order_list", params)
}

func runSnapshot(args []string) {
	kind := "state"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--kind":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--kind requires a value")
				os.Exit(1)
			}
			i++
			kind = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd snapshot [--kind <state|params>]\n", args[i])
			os.Exit(1)
		}
	}
	sendCommand("snapshot_latest", map[string]any{"kind": kind})
}

func runCheck(args []string) {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: argusd check\n", args[0])
		os.Exit(1)
	}
	sendCommand("check_responses", nil)
}

func runAMMCreate(args []string) {
	var name, description, timingKind string
	var activate bool
	var startDate, endDate *time.Time
	var startTime, endTime string
	var weekdays []int
	var intervalDays, intervalHours, intervalMinutes int

	var task, detector, demodulation, station, signalPath string
	var freqSingle, freqLow, freqHigh, freqStep, bandwidth, attenuation float64
	var freqList []float64
	var measureTime int

	timingKind = "always"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--name requires a value")
				os.Exit(1)
			}
			i++
			name = args[i]
		case "--description":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--description requires a value")
				os.Exit(1)
			}
			i++
			description = args[i]
		case "--activate":
			activate = true
		case "--timing":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--timing requires a value")
				os.Exit(1)
			}
			i++
			timingKind = args[i]
		case "--start-date":
			startDate = dateFlag(args, &i)
		case "--end-date":
			endDate = dateFlag(args, &i)
		case "--start-time":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--start-time requires a value")
				os.Exit(1)
			}
			i++
			startTime = args[i]
		case "--end-time":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--end-time requires a value")
				os.Exit(1)
			}
			i++
			endTime = args[i]
		case "--weekday":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--weekday requires a value")
				os.Exit(1)
			}
			i++
			wd, ok := parseWeekday(args[i])
			if !ok {
				fmt.Fprintf(os.Stderr, "invalid --weekday value: %s\n", args[i])
				os.Exit(1)
			}
			weekdays = append(weekdays, int(wd))
		case "--interval-days":
			intervalDays = intFlag(args, &i)
		case "--interval-hours":
			intervalHours = intFlag(args, &i)
		case "--interval-minutes":
			intervalMinutes = intFlag(args, &i)
		case "--task":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--task requires a value")
				os.Exit(1)
			}
			i++
			task = args[i]
		case "--freq":
			freqSingle = floatFlag(args, &i)
		case "--freq-low":
			freqLow = floatFlag(args, &i)
		case "--freq-high":
			freqHigh = floatFlag(args, &i)
		case "--freq-step":
			freqStep = floatFlag(args, &i)
		case "--freq-list":
			freqList = append(freqList, floatFlag(args, &i))
		case "--bandwidth":
			bandwidth = floatFlag(args, &i)
		case "--attenuation":
			attenuation = floatFlag(args, &i)
		case "--detector":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--detector requires a value")
				os.Exit(1)
			}
			i++
			detector = args[i]
		case "--demodulation":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--demodulation requires a value")
				os.Exit(1)
			}
			i++
			demodulation = args[i]
		case "--measure-time":
			measureTime = intFlag(args, &i)
		case "--station":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--station requires a value")
				os.Exit(1)
			}
			i++
			station = args[i]
		case "--signal-path":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--signal-path requires a value")
				os.Exit(1)
			}
			i++
			signalPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			fmt.Fprintln(os.Stderr, "usage: argusd amm create --name <text> --task <task> [timing and measurement options]")
			os.Exit(1)
		}
	}

	if name == "" || task == "" {
		fmt.Fprintln(os.Stderr, "required: --name and --task")
		fmt.Fprintln(os.Stderr, "usage: argusd amm create --name <text> --task <task> [timing and measurement options]")
		os.Exit(1)
	}

	switch timingKind {
	case "always", "date_span", "daily_window", "weekday_window", "interval":
	default:
		fmt.Fprintf(os.Stderr, "unknown timing kind: %s (must be always|date_span|daily_window|weekday_window|interval)\n", timingKind)
		os.Exit(1)
	}

	freq, err := buildFrequency(freqSingle, freqLow, freqHigh, freqStep, freqList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	timing := map[string]any{"kind": timingKind}
	if startDate != nil {
		timing["start_date"] = startDate
	}
	if endDate != nil {
		timing["end_date"] = endDate
	}
	if startTime != "" {
		timing["start_time"] = startTime
	}
	if endTime != "" {
		timing["end_time"] = endTime
	}
	if len(weekdays) > 0 {
		timing["weekdays"] = weekdays
	}
	if intervalDays > 0 {
		timing["interval_days"] = intervalDays
	}
	if intervalHours > 0 {
		timing["interval_hours"] = intervalHours
	}
	if intervalMinutes > 0 {
		timing["interval_minutes"] = intervalMinutes
	}

	template := map[string]any{
		"task":      task,
		"frequency": freq,
	}
	if bandwidth > 0 {
		template["if_bandwidth"] = bandwidth
	}
	if attenuation > 0 {
		template["rf_attenuation"] = attenuation
	}
	if detector != "" {
		template["detector"] = detector
	}
	if demodulation != "" {
		template["demodulation"] = demodulation
	}
	if measureTime > 0 {
		template["measure_time_ms"] = measureTime
	}
	if station != "" {
		template["station_name"] = station
	}
	if signalPath != "" {
		template["signal_path"] = signalPath
	}

	params := map[string]any{
		"name":     name,
		"timing":   timing,
		"template": template,
	}
	if description != "" {
		params["description"] = description
	}
	if activate {
		params["activate"] = true
	}

	sendCommand("amm_create", params)
}

func runAMMConfigCommand(command string, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: argusd amm %s <config_id>\n", strings.TrimPrefix(command, "amm_"))
		os.Exit(1)
	}
	sendCommand(command, map[string]any{"config_id": args[0]})
}

// sendCommand is the shared thin-client path: resolve .argusd/, send one
// framed request over the control socket, print the JSON payload.
func sendCommand(command string, params map[string]any) {
	argusDir := findArgusDir()
	if argusDir == "" {
		fmt.Fprintln(os.Stderr, "error: .argusd/ directory not found. Run 'argusd setup <dir>' first.")
		os.Exit(1)
	}

	client := uds.NewClient(filepath.Join(argusDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}

	if !resp.Success {
		code := ""
		msg := "unknown error"
		if resp.Error != nil {
			code = resp.Error.Code
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", command, code, msg)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(json.RawMessage(resp.Data), "", "  ")
	fmt.Println(string(out))
}

// floatFlag consumes the value of the flag at args[*i], advancing the index.
func floatFlag(args []string, i *int) float64 {
	flag := args[*i]
	if *i+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
		os.Exit(1)
	}
	*i++
	v, err := strconv.ParseFloat(args[*i], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s value: %s\n", flag, args[*i])
		os.Exit(1)
	}
	return v
}

func intFlag(args []string, i *int) int {
	flag := args[*i]
	if *i+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
		os.Exit(1)
	}
	*i++
	v, err := strconv.Atoi(args[*i])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s value: %s\n", flag, args[*i])
		os.Exit(1)
	}
	return v
}

// dateFlag accepts RFC3339 or plain YYYY-MM-DD.
func dateFlag(args []string, i *int) *time.Time {
	flag := args[*i]
	if *i+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
		os.Exit(1)
	}
	*i++
	if t, err := time.Parse(time.RFC3339, args[*i]); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", args[*i]); err == nil {
		return &t
	}
	fmt.Fprintf(os.Stderr, "invalid %s value: %s (want RFC3339 or YYYY-MM-DD)\n", flag, args[*i])
	os.Exit(1)
	return nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(s) {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	}
	return 0, false
}

// findArgusDir searches for .argusd/ in the current directory and ancestors.
func findArgusDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `argusd %s - spectrum monitoring instrument integration

Usage: argusd <command> [options]

Project:
  setup <dir> [--project <name>]   Initialize .argusd/ directory
  daemon                           Run the integration daemon
  down                             Ask the running daemon to stop
  status [--json]                  Show daemon and exchange status
  metrics [--json]                 Show daemon counters

Orders (CLI -> daemon):
  order submit --type <t> [opts]   Submit an order to the instrument
  order get <order_id>             Show one order with its results
  order list [--state] [--limit]   List orders
  check                            Sweep the outbox for responses now
  snapshot [--kind state|params]   Show the latest system snapshot

Scheduling:
  amm list                         List measurement configurations
  amm create [options]             Create a configuration
  amm get <config_id>              Show a configuration and recent runs
  amm start <config_id>            Activate a configuration
  amm pause <config_id>            Pause an active configuration
  amm stop <config_id>             Stop a configuration
  amm run <config_id>              Execute a configuration now

Utilities:
  version                          Show version
  help                             Show this help

`, version)
}
