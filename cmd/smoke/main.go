package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Exercises a running server end to end. Titles come from the command line.
func main() {
	baseURL := os.Getenv("SMOKE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	titles := os.Args[1:]
	if len(titles) == 0 {
		titles = []string{"Splendid fairywren"}
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting smoke test...")

	fmt.Println("1. Importing articles...")
	body, ok := sendRequest(http.MethodPost, baseURL+"/articles", map[string]interface{}{"titles": titles})
	if !ok {
		fmt.Println("FAILED: Import articles")
		os.Exit(1)
	}
	var imported struct {
		Results []struct {
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &imported); err != nil || len(imported.Results) != len(titles) {
		fmt.Printf("FAILED: unexpected import response: %s\n", body)
		os.Exit(1)
	}
	for _, r := range imported.Results {
		if r.Status == "failed" {
			fmt.Printf("FAILED: %s did not import\n", r.Title)
			os.Exit(1)
		}
	}
	fmt.Println("PASSED: Import articles")

	fmt.Println("2. Checking metrics...")
	body, ok = sendRequest(http.MethodGet, baseURL+"/metrics", nil)
	if !ok || !strings.Contains(string(body), "evotrees_documents_total") {
		fmt.Println("FAILED: Metrics")
		os.Exit(1)
	}
	fmt.Println("PASSED: Metrics")
}

func sendRequest(method, url string, payload interface{}) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	return respBody, true
}
