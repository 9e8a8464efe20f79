package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func runSession(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: syncpad-cli session <subcommand>

Subcommands:
  list                 List live collaboration sessions`)
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		sessionList()
	default:
		fatal("unknown session subcommand: " + args[0])
	}
}

func sessionList() {
	var sessions []struct {
		DocumentID string `json:"documentId"`
		Title      string `json:"title"`
		Users      []struct {
			UserID   string `json:"userId"`
			UserName string `json:"userName"`
		} `json:"users"`
		UserCount    int       `json:"userCount"`
		TextLength   int       `json:"textLength"`
		LastActivity time.Time `json:"lastActivity"`
	}
	if err := getJSON("/sessions", &sessions); err != nil {
		fatal(err.Error())
	}

	if len(sessions) == 0 {
		fmt.Println("No live sessions.")
		return
	}

	headers := []string{"DOCUMENT", "TITLE", "USERS", "TEXT", "LAST ACTIVITY"}
	var rows [][]string
	for _, s := range sessions {
		names := make([]string, 0, len(s.Users))
		for _, u := range s.Users {
			names = append(names, u.UserName)
		}
		rows = append(rows, []string{
			s.DocumentID,
			truncate(s.Title, 30),
			strconv.Itoa(s.UserCount) + " (" + truncate(strings.Join(names, ", "), 40) + ")",
			formatSize(int64(s.TextLength)),
			s.LastActivity.Local().Format("2006-01-02 15:04:05"),
		})
	}
	printTable(headers, rows)
}
