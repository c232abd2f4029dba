package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/nexusai/nexus/internal/app"
	"github.com/nexusai/nexus/internal/audit"
	"github.com/nexusai/nexus/internal/credstore"
	"github.com/nexusai/nexus/internal/nexus"
	"github.com/nexusai/nexus/internal/pii"
	"github.com/nexusai/nexus/internal/router"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("nexusctl %s\n", version)
	case "ask":
		doAsk(args)
	case "stream":
		doStream(args)
	case "scan":
		doScan(args)
	case "model", "models":
		doModels(args)
	case "cost":
		doCost(args)
	case "audit":
		doAudit(args)
	case "creds":
		doCreds(args)
	case "help", "--help", "-h":
		usageTo(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	usageTo(os.Stderr)
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `nexusctl — CLI for the NEXUS orchestration core

Usage: nexusctl <command> [arguments]

Environment:
  NEXUS_* variables and provider API keys configure the core; a .env file
  in the working directory is loaded first when present.

Commands:
  ask [flags] <prompt>        Run one orchestrated inference and print the result
      --mode <m>              chat|code|reasoning|search_rag|multi_model|fast|creative
      --tenant <id>           Tenant ID (default: cli)
      --models <a,b,...>      Bypass routing with an explicit model list
      --max <n>               Cap the fan-out width

  stream [flags] <prompt>     Stream one inference as SSE frames on stdout
      --mode, --tenant        As for ask
      --model <id>            Stream from a specific model

  scan <text>                 Run the PII detector and print entities + redaction

  models [flags] <prompt>     Preview routing for a prompt without calling providers
      --mode <m>, --max <n>   As for ask

  cost <tenant-id>            Show tenant spend (today + month-to-date)
      --budget <usd>          Budget to check against (default NEXUS_DAILY_BUDGET_USD)

  audit verify <file.jsonl>   Verify a hash chain exported as JSON lines

  creds seal <path> k=v...    Seal provider credentials into an encrypted file
  creds show <path>           List providers in a sealed file
                              (passphrase from NEXUS_CREDS_PASSPHRASE)

  version                     Show version
  help                        Show this help

Examples:
  nexusctl ask --mode code "Write a binary search in Go"
  nexusctl ask --models gpt-4o,deepseek-chat "Compare answers"
  nexusctl stream --mode fast "Summarize this in one line"
  nexusctl scan "My card is 4111111111111111"
  nexusctl models --mode reasoning "Prove sqrt(2) is irrational"
  nexusctl cost acme-corp --budget 500
  nexusctl audit verify trail.jsonl
  NEXUS_CREDS_PASSPHRASE=... nexusctl creds seal creds.json openai=sk-...
`)
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func requireArgs(args []string, min int, usage string) {
	if len(args) < min {
		fmt.Fprintf(os.Stderr, "usage: nexusctl %s\n", usage)
		os.Exit(1)
	}
}

// parseFlags splits leading --flag value pairs from the trailing positional
// words, which are joined into the prompt.
func parseFlags(args []string) (map[string]string, string) {
	flags := map[string]string{}
	i := 0
	for i < len(args) {
		if strings.HasPrefix(args[i], "--") && i+1 < len(args) {
			flags[strings.TrimPrefix(args[i], "--")] = args[i+1]
			i += 2
			continue
		}
		break
	}
	return flags, strings.Join(args[i:], " ")
}

func newApp() *app.App {
	cfg, err := app.LoadConfig()
	fatal(err)
	a, err := app.New(cfg)
	fatal(err)
	return a
}

func buildRequest(flags map[string]string, prompt string) nexus.Request {
	tenant := flags["tenant"]
	if tenant == "" {
		tenant = "cli"
	}
	req := nexus.NewRequest(prompt, router.ParseMode(flags["mode"]), tenant)
	req.ActorID = "nexusctl"
	if models := flags["models"]; models != "" {
		req.OverrideModels = strings.Split(models, ",")
	} else if model := flags["model"]; model != "" {
		req.OverrideModels = []string{model}
	}
	if max := flags["max"]; max != "" {
		n, err := strconv.Atoi(max)
		fatal(err)
		req.MaxModels = n
	}
	return req
}

// --- Commands ---

func doAsk(args []string) {
	flags, prompt := parseFlags(args)
	if prompt == "" && flags["models"] == "" {
		requireArgs(nil, 1, "ask [flags] <prompt>")
	}
	a := newApp()
	defer func() { _ = a.Close(context.Background()) }()

	res, err := a.Engine.Orchestrate(context.Background(), buildRequest(flags, prompt))
	fatal(err)

	fmt.Println(res.FinalResponse)
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tPROVIDER\tLATENCY\tTOKENS\tCOST\tSTATUS")
	for _, m := range res.ModelsUsed {
		status := "ok"
		if !m.OK() {
			status = m.Err
			if len(status) > 60 {
				status = status[:57] + "..."
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.0fms\t%d\t$%.4f\t%s\n",
			m.ModelID, m.Provider, m.LatencyMs, m.TokensUsed, m.CostUSD, status)
	}
	_ = tw.Flush()
	fmt.Printf("\nRequest:    %s\n", res.RequestID)
	fmt.Printf("Mode:       %s\n", res.Mode)
	fmt.Printf("Consensus:  %.0f%%\n", res.ConsensusScore*100)
	fmt.Printf("Synthesized: %t\n", res.Synthesized)
	fmt.Printf("PII found:  %t\n", res.PIIDetected)
	fmt.Printf("Total:      %.0fms, $%.4f\n", res.TotalLatencyMs, res.TotalCostUSD)
}

func doStream(args []string) {
	flags, prompt := parseFlags(args)
	if prompt == "" {
		requireArgs(nil, 1, "stream [flags] <prompt>")
	}
	a := newApp()
	defer func() { _ = a.Close(context.Background()) }()

	frames, errs := a.Engine.Stream(context.Background(), buildRequest(flags, prompt))
	for f := range frames {
		fmt.Print(f.Encode())
	}
	fatal(<-errs)
}

func doScan(args []string) {
	text := strings.Join(args, " ")
	if text == "" {
		requireArgs(nil, 1, "scan <text>")
	}
	res := pii.NewDetector().Analyze(text)

	if !res.HasPII {
		fmt.Println("No PII detected.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tSPAN\tLENGTH\tCRITICAL")
	for _, e := range res.Entities {
		critical := "no"
		if e.Critical {
			critical = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d-%d\t%d\t%s\n", e.Type, e.Start, e.End, e.ValueLength, critical)
	}
	_ = tw.Flush()
	fmt.Printf("\nRedacted: %s\n", res.RedactedText)
}

func doModels(args []string) {
	flags, prompt := parseFlags(args)
	if prompt == "" {
		requireArgs(nil, 1, "models [flags] <prompt>")
	}
	cfg, err := app.LoadConfig()
	fatal(err)

	mode := router.ParseMode(flags["mode"])
	maxModels := cfg.MaxModels
	if m := flags["max"]; m != "" {
		maxModels, err = strconv.Atoi(m)
		fatal(err)
	}

	rtr := router.New(credstore.Func(cfg.CredentialFor), cfg.IsDevelopment())
	selected := rtr.SelectModels(prompt, mode, maxModels, nil)

	fmt.Printf("Mode:  %s\n", mode)
	fmt.Printf("Task:  %s\n\n", router.DetectTask(prompt))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORDER\tMODEL\tPROVIDER\tLATENCY\tCOST TIER")
	for i, id := range selected {
		info, _ := router.Lookup(id)
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, id, router.Provider(id), info.Latency, info.CostTier)
	}
	_ = tw.Flush()
}

func doCost(args []string) {
	requireArgs(args, 1, "cost <tenant-id> [--budget usd]")
	tenantID := args[0]
	flags, _ := parseFlags(args[1:])

	a := newApp()
	defer func() { _ = a.Close(context.Background()) }()
	ctx := context.Background()

	b := a.Tracker.CostBreakdown(ctx, tenantID)
	fmt.Printf("Tenant:         %s\n", tenantID)
	fmt.Printf("Today:          $%.4f\n", b.TodayUSD)
	fmt.Printf("Month to date:  $%.4f\n", b.MTDUSD)

	budget := a.Config.DailyBudgetUSD
	if bv := flags["budget"]; bv != "" {
		var err error
		budget, err = strconv.ParseFloat(bv, 64)
		fatal(err)
	}
	if budget > 0 {
		allowed, spend, pct := a.Tracker.CheckBudget(ctx, tenantID, budget)
		fmt.Println(budgetLine(budget, spend, pct, allowed))
	}
}

// budgetLine renders the budget summary row. CheckBudget reports usage as a
// ratio of spend to budget, so it is scaled to a percentage here.
func budgetLine(budget, spend, pct float64, allowed bool) string {
	state := "within budget"
	if !allowed {
		state = "budget exceeded"
	}
	return fmt.Sprintf("Budget:         $%.2f ($%.4f spent, %.1f%% used, %s)", budget, spend, pct*100, state)
}

func doAudit(args []string) {
	requireArgs(args, 2, "audit verify <file.jsonl>")
	if args[0] != "verify" {
		fmt.Fprintf(os.Stderr, "unknown audit command: %s\n", args[0])
		os.Exit(1)
	}
	f, err := os.Open(args[1])
	fatal(err)
	defer func() { _ = f.Close() }()

	var entries []audit.Entry
	dec := json.NewDecoder(f)
	for {
		var e audit.Entry
		if err := dec.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			fatal(fmt.Errorf("entry %d: %w", len(entries), err))
		}
		entries = append(entries, e)
	}

	ok, badIndex := audit.Verify(entries)
	if ok {
		fmt.Printf("Chain intact: %d entries verified.\n", len(entries))
		return
	}
	fmt.Fprintf(os.Stderr, "Chain broken at entry %d", badIndex)
	if badIndex < len(entries) {
		fmt.Fprintf(os.Stderr, " (id %s)", entries[badIndex].ID)
	}
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

func doCreds(args []string) {
	requireArgs(args, 2, "creds <seal|show> <path> [args]")
	passphrase := os.Getenv("NEXUS_CREDS_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "NEXUS_CREDS_PASSPHRASE is not set")
		os.Exit(1)
	}

	switch args[0] {
	case "seal":
		requireArgs(args, 3, "creds seal <path> provider=key...")
		creds := map[string]string{}
		for _, pair := range args[2:] {
			provider, key, ok := strings.Cut(pair, "=")
			if !ok || provider == "" {
				fmt.Fprintf(os.Stderr, "malformed credential %q, want provider=key\n", pair)
				os.Exit(1)
			}
			creds[provider] = key
		}
		fatal(credstore.Seal(args[1], []byte(passphrase), creds))
		fmt.Printf("Sealed %d credentials to %s.\n", len(creds), args[1])
	case "show":
		s, err := credstore.Open(args[1], []byte(passphrase))
		fatal(err)
		defer s.Close()
		providers := s.Providers()
		if len(providers) == 0 {
			fmt.Println("No credentials sealed.")
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PROVIDER\tKEY")
		for _, p := range providers {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", p, maskKey(s.Get(p)))
		}
		_ = tw.Flush()
	default:
		fmt.Fprintf(os.Stderr, "unknown creds command: %s\n", args[0])
		os.Exit(1)
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}
