package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func runSync(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: syncpad-cli sync <subcommand>

Subcommands:
  status               Show site sync peer status`)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		syncStatus()
	default:
		fatal("unknown sync subcommand: " + args[0])
	}
}

func syncStatus() {
	var status struct {
		Enabled    bool   `json:"enabled"`
		SiteID     string `json:"siteId"`
		QueueDepth int    `json:"queueDepth"`
		Peers      []struct {
			Name        string `json:"name"`
			URL         string `json:"url"`
			LastSync    string `json:"lastSync"`
			TotalSynced int64  `json:"totalSynced"`
			TotalFailed int64  `json:"totalFailed"`
			LastError   string `json:"lastError"`
		} `json:"peers"`
	}
	if err := getJSON("/sync/status", &status); err != nil {
		fatal(err.Error())
	}

	if !status.Enabled {
		fmt.Println("Site sync is disabled.")
		return
	}

	fmt.Printf("Site:  %s\n", status.SiteID)
	fmt.Printf("Queue: %d pending pushes\n\n", status.QueueDepth)

	if len(status.Peers) == 0 {
		fmt.Println("No sync peers configured.")
		return
	}

	headers := []string{"PEER", "URL", "SYNCED", "FAILED", "LAST SYNC", "LAST ERROR"}
	var rows [][]string
	for _, p := range status.Peers {
		lastSync := "never"
		if p.LastSync != "" {
			if ts, err := time.Parse(time.RFC3339, p.LastSync); err == nil {
				lastSync = ts.Local().Format("2006-01-02 15:04:05")
			} else {
				lastSync = p.LastSync
			}
		}
		lastErr := "-"
		if p.LastError != "" {
			lastErr = truncate(p.LastError, 40)
		}
		rows = append(rows, []string{
			p.Name,
			p.URL,
			strconv.FormatInt(p.TotalSynced, 10),
			strconv.FormatInt(p.TotalFailed, 10),
			lastSync,
			lastErr,
		})
	}
	printTable(headers, rows)
}
