package main

import (
	"fmt"
	"strconv"
)

func runStats(_ []string) {
	var stats struct {
		ActiveSessions    int   `json:"activeSessions"`
		ActiveUsers       int   `json:"activeUsers"`
		ActiveConnections int64 `json:"activeConnections"`
		StoredDocuments   int   `json:"storedDocuments"`
		TotalMessages     int64 `json:"totalMessages"`
		TotalErrors       int64 `json:"totalErrors"`
		TotalRequests     int64 `json:"totalRequests"`
		MessagesByKind    []struct {
			Kind  string `json:"kind"`
			Count int64  `json:"count"`
		} `json:"messagesByKind"`
		UptimeSeconds float64 `json:"uptimeSeconds"`
		Goroutines    int     `json:"goroutines"`
		MemoryMB      float64 `json:"memoryMB"`
	}
	if err := getJSON("/stats", &stats); err != nil {
		fatal(err.Error())
	}

	fmt.Printf("Active sessions:    %d\n", stats.ActiveSessions)
	fmt.Printf("Active users:       %d\n", stats.ActiveUsers)
	fmt.Printf("Open connections:   %d\n", stats.ActiveConnections)
	fmt.Printf("Stored documents:   %d\n", stats.StoredDocuments)
	fmt.Printf("Messages handled:   %d (%d errors)\n", stats.TotalMessages, stats.TotalErrors)
	fmt.Printf("Admin requests:     %d\n", stats.TotalRequests)
	fmt.Printf("Uptime:             %.0fs\n", stats.UptimeSeconds)
	fmt.Printf("Goroutines:         %d\n", stats.Goroutines)
	fmt.Printf("Memory:             %.1f MB\n", stats.MemoryMB)

	var rows [][]string
	for _, k := range stats.MessagesByKind {
		if k.Count == 0 {
			continue
		}
		rows = append(rows, []string{k.Kind, strconv.FormatInt(k.Count, 10)})
	}
	if len(rows) > 0 {
		fmt.Println()
		printTable([]string{"MESSAGE KIND", "COUNT"}, rows)
	}
}
