package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	baseURL = "http://localhost:8080"
)

// Smoke test against a running `graphdiff serve`. The branch to diff comes
// from GRAPHDIFF_BRANCH.
func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	branch := os.Getenv("GRAPHDIFF_BRANCH")
	if branch == "" {
		fmt.Println("GRAPHDIFF_BRANCH is not set")
		os.Exit(1)
	}
	query := url.Values{"diff_branch": {branch}}.Encode()

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Health check...")
	if _, ok := sendRequest("GET", "/healthz", nil); !ok {
		fmt.Println("FAILED: Health check")
		os.Exit(1)
	}
	fmt.Println("PASSED: Health check")

	fmt.Println("2. Fetching diff...")
	if _, ok := sendRequest("GET", "/diff?"+query, nil); !ok {
		fmt.Println("FAILED: Diff")
		os.Exit(1)
	}
	fmt.Println("PASSED: Diff")

	fmt.Println("3. Listing conflicts...")
	body, ok := sendRequest("GET", "/conflicts?"+query, nil)
	if !ok {
		fmt.Println("FAILED: Conflicts")
		os.Exit(1)
	}
	var conflicts struct {
		Conflicts []struct {
			ID string `json:"id"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(body, &conflicts); err != nil {
		fmt.Printf("FAILED: Conflicts response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("PASSED: Conflicts (%d)\n", len(conflicts.Conflicts))

	fmt.Println("4. Resolving conflicts...")
	for _, c := range conflicts.Conflicts {
		if _, ok := sendRequest("POST", "/conflicts/"+c.ID+"/resolve", map[string]string{"selection": "diff_branch"}); !ok {
			fmt.Printf("FAILED: Resolve %s\n", c.ID)
			os.Exit(1)
		}
	}
	fmt.Println("PASSED: Resolve")

	fmt.Println("5. Previewing merge...")
	if _, ok := sendRequest("POST", "/merge/preview", map[string]string{"diff_branch": branch}); !ok {
		fmt.Println("FAILED: Merge preview")
		os.Exit(1)
	}
	fmt.Println("PASSED: Merge preview")
}

func sendRequest(method, endpoint string, payload any) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
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
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
