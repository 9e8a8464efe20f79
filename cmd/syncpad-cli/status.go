package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func runStatus(_ []string) {
	base := strings.TrimRight(endpoint, "/")

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		fatal("server unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fatal("parse health response: " + err.Error())
	}

	var ready struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	readyResp, err := http.Get(base + "/readyz")
	if err != nil {
		fatal("server unreachable: " + err.Error())
	}
	defer readyResp.Body.Close()
	if err := json.NewDecoder(readyResp.Body).Decode(&ready); err != nil {
		fatal("parse ready response: " + err.Error())
	}

	fmt.Printf("Endpoint: %s\n", endpoint)
	fmt.Printf("Health:   %s (up %s)\n", health.Status, health.Uptime)
	if ready.Error != "" {
		fmt.Printf("Ready:    %s (%s)\n", ready.Status, ready.Error)
	} else {
		fmt.Printf("Ready:    %s\n", ready.Status)
	}
}
