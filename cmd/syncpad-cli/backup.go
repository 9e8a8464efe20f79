package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

func runBackup(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: syncpad-cli backup <subcommand>

Subcommands:
  status               Show backup history
  run                  Start a backup now`)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		backupStatus()
	case "run":
		backupRun()
	default:
		fatal("unknown backup subcommand: " + args[0])
	}
}

func backupStatus() {
	var resp struct {
		Enabled bool `json:"enabled"`
		Running bool `json:"running"`
		Records []struct {
			ID        string `json:"id"`
			StartTime string `json:"startTime"`
			Status    string `json:"status"`
			Documents int    `json:"documents"`
			Bytes     int64  `json:"bytes"`
			Dir       string `json:"dir"`
			Error     string `json:"error"`
		} `json:"records"`
	}
	if err := getJSON("/backup/status", &resp); err != nil {
		fatal(err.Error())
	}

	if !resp.Enabled {
		fmt.Println("Backups are disabled.")
		return
	}
	if resp.Running {
		fmt.Println("A backup is running.")
	}
	if len(resp.Records) == 0 {
		fmt.Println("No backups recorded yet.")
		return
	}

	rows := make([][]string, 0, len(resp.Records))
	for _, rec := range resp.Records {
		started := rec.StartTime
		if ts, err := time.Parse(time.RFC3339, rec.StartTime); err == nil {
			started = ts.Local().Format("2006-01-02 15:04:05")
		}
		detail := rec.Dir
		if rec.Error != "" {
			detail = truncate(rec.Error, 40)
		}
		rows = append(rows, []string{
			started,
			rec.Status,
			fmt.Sprintf("%d", rec.Documents),
			formatSize(rec.Bytes),
			detail,
		})
	}
	printTable([]string{"STARTED", "STATUS", "DOCS", "SIZE", "LOCATION"}, rows)
}

func backupRun() {
	resp, err := apiRequest("POST", "/backup/run", nil)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != 202 {
		body, _ := io.ReadAll(resp.Body)
		fatal(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}
	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fatal(err.Error())
	}
	fmt.Println(result.Status)
}
