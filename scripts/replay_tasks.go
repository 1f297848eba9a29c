// replay_tasks.go: standalone script that replays exported task snapshots
// through task approval and prints the tier mix. Used to check a weight or
// threshold change against real traffic before rolling it out.
//
// Usage:
//
//	go run scripts/replay_tasks.go -in tasks.jsonl -api http://localhost:8700
//	go run scripts/replay_tasks.go -in tasks.jsonl -local -config trust.yaml
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/BittieTasks/trust/internal/approval"
	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/config"
)

type evaluateResponse struct {
	Decision audit.Record `json:"decision"`
}

func main() {
	inPath := flag.String("in", "tasks.jsonl", "JSON lines file of task snapshots")
	apiURL := flag.String("api", "http://localhost:8700", "trustd API base URL")
	local := flag.Bool("local", false, "evaluate in-process instead of calling the API")
	configPath := flag.String("config", "", "config file for -local runs")
	verbose := flag.Bool("v", false, "print every decision")
	flag.Parse()

	f, err := os.Open(*inPath)
	if err != nil {
		log.Fatalf("open %s: %v", *inPath, err)
	}
	defer f.Close()

	var tasks []approval.Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var t approval.Task
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			log.Printf("skip line %d: %v", line, err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("scan %s: %v", *inPath, err)
	}
	log.Printf("parsed %d tasks from %s", len(tasks), *inPath)

	evaluate := remoteEvaluator(*apiURL)
	if *local {
		evaluate = localEvaluator(*configPath)
	}

	tiers := map[string]int{}
	failed := 0
	for _, t := range tasks {
		rec, err := evaluate(t)
		if err != nil {
			log.Printf("skip %q: %v", t.ID, err)
			failed++
			continue
		}
		tiers[rec.Tier]++
		if *verbose {
			fmt.Printf("%s\t%s\t%.0f\t%v\n", rec.EntityID, rec.Tier, rec.Score, rec.Factors)
		}
	}

	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-18s %6d\n", name, tiers[name])
	}
	log.Printf("done: %d evaluated, %d failed", len(tasks)-failed, failed)
}

func remoteEvaluator(baseURL string) func(approval.Task) (audit.Record, error) {
	client := &http.Client{}
	return func(t approval.Task) (audit.Record, error) {
		body, _ := json.Marshal(t)
		resp, err := client.Post(baseURL+"/api/v1/evaluate/task", "application/json", bytes.NewReader(body))
		if err != nil {
			return audit.Record{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return audit.Record{}, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}
		var out evaluateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return audit.Record{}, err
		}
		return out.Decision, nil
	}
}

// localEvaluator builds a task approval engine over an in-memory log, so
// replayed tasks see each other's history the way live traffic would.
func localEvaluator(configPath string) func(approval.Task) (audit.Record, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	memLog := audit.NewMemoryLog()
	e, err := approval.New(cfg.TaskApproval, approval.Deps{
		Recorder: memLog,
		History:  memLog,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	return func(t approval.Task) (audit.Record, error) {
		out, err := e.Evaluate(context.Background(), t)
		if err != nil {
			return audit.Record{}, err
		}
		return out.Record, nil
	}
}
