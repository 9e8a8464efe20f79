package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
)

func runDocument(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: syncpad-cli document <subcommand> [args]

Subcommands:
  show <id>            Show a document's text and metadata
  dump <id> [file]     Dump the full replicated state, to stdout or a file
  snapshot <id>        Force a snapshot of a live document
  diff <id>            Show live changes against the stored snapshot`)
		os.Exit(1)
	}

	sub := args[0]
	subArgs := args[1:]
	if len(subArgs) == 0 {
		fatal(sub + " requires a document id")
	}
	id := subArgs[0]

	switch sub {
	case "show":
		documentShow(id)
	case "dump":
		out := ""
		if len(subArgs) > 1 {
			out = subArgs[1]
		}
		documentDump(id, out)
	case "snapshot":
		documentSnapshot(id)
	case "diff":
		documentDiff(id)
	default:
		fatal("unknown document subcommand: " + sub)
	}
}

func documentShow(id string) {
	var doc struct {
		DocumentID  string         `json:"documentId"`
		Title       string         `json:"title"`
		Text        string         `json:"text"`
		TextLength  int            `json:"textLength"`
		Live        bool           `json:"live"`
		Annotations map[string]any `json:"annotations"`
		ActionItems map[string]any `json:"actionItems"`
		Presence    map[string]any `json:"presence"`
	}
	if err := getJSON("/documents/"+url.PathEscape(id), &doc); err != nil {
		fatal(err.Error())
	}

	source := "snapshot"
	if doc.Live {
		source = "live"
	}
	fmt.Printf("Document: %s (%s)\n", doc.DocumentID, source)
	fmt.Printf("Title:    %s\n", doc.Title)
	fmt.Printf("Length:   %d chars, %d annotations, %d action items",
		doc.TextLength, len(doc.Annotations), len(doc.ActionItems))
	if doc.Live {
		fmt.Printf(", %d present", len(doc.Presence))
	}
	fmt.Println()
	fmt.Println()
	fmt.Println(doc.Text)
}

func documentDump(id, outPath string) {
	resp, err := apiRequest("GET", "/documents/"+url.PathEscape(id)+"/state", nil)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		fatal(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fatal(err.Error())
		}
		defer f.Close()
		out = f
	}
	n, err := io.Copy(out, resp.Body)
	if err != nil {
		fatal("dump failed: " + err.Error())
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s to %s\n", formatSize(n), outPath)
	}
}

func documentSnapshot(id string) {
	resp, err := apiRequest("POST", "/documents/"+url.PathEscape(id)+"/snapshot", nil)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		fatal(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}
	fmt.Printf("Snapshot of %s saved.\n", id)
}

func documentDiff(id string) {
	var result struct {
		DocumentID   string               `json:"documentId"`
		Changed      bool                 `json:"changed"`
		LengthStored int                  `json:"lengthStored"`
		LengthLive   int                  `json:"lengthLive"`
		Metadata     map[string][2]string `json:"metadata"`
		Lines        []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"lines"`
	}
	if err := getJSON("/documents/"+url.PathEscape(id)+"/diff", &result); err != nil {
		fatal(err.Error())
	}

	if !result.Changed {
		fmt.Printf("%s matches its snapshot.\n", id)
		return
	}
	fmt.Printf("Document: %s (snapshot %d chars, live %d chars)\n",
		result.DocumentID, result.LengthStored, result.LengthLive)
	for key, pair := range result.Metadata {
		fmt.Printf("  %s: %s -> %s\n", key, pair[0], pair[1])
	}
	fmt.Println()
	for _, line := range result.Lines {
		switch line.Type {
		case "add":
			fmt.Printf("+ %s\n", line.Text)
		case "remove":
			fmt.Printf("- %s\n", line.Text)
		default:
			fmt.Printf("  %s\n", line.Text)
		}
	}
}
