package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

func runSearch(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: syncpad-cli search <query> [limit]

Terms match as substrings and all of them must hit. A title: prefix
restricts a term to document titles, e.g. "title:roadmap review".`)
		os.Exit(1)
	}
	query := args[0]
	limit := 0
	if len(args) > 1 {
		limit, _ = strconv.Atoi(args[1])
	}

	var resp struct {
		Count   int `json:"count"`
		Results []struct {
			DocumentID   string `json:"documentId"`
			Title        string `json:"title"`
			TextLength   int    `json:"textLength"`
			LastModified string `json:"lastModified"`
		} `json:"results"`
	}
	path := "/search?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	if err := getJSON(path, &resp); err != nil {
		fatal(err.Error())
	}

	if resp.Count == 0 {
		fmt.Println("No documents match.")
		return
	}
	rows := make([][]string, 0, len(resp.Results))
	for _, hit := range resp.Results {
		modified := "-"
		if hit.LastModified != "" {
			if ts, err := time.Parse(time.RFC3339Nano, hit.LastModified); err == nil {
				modified = ts.Local().Format("2006-01-02 15:04:05")
			}
		}
		rows = append(rows, []string{
			hit.DocumentID,
			truncate(hit.Title, 30),
			formatSize(int64(hit.TextLength)),
			modified,
		})
	}
	printTable([]string{"DOCUMENT", "TITLE", "TEXT", "MODIFIED"}, rows)
}
