package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "엔진 처리 상태 모니터링",
	Long: `실행 중인 엔진의 처리 통계를 주기적으로 표시합니다.

표시 정보:
- Subscribers: 스트림 구독 트랜스포머 수
- Dropped: 허브에서 드랍된 틱 수
- Transformers: 타임프레임별 처리/중복/배치 간격

Features:
- 실시간 갱신 (--refresh 간격)
- Ctrl+C로 종료

Example:
  go run ./cmd/pulse status
  go run ./cmd/pulse status --addr localhost:8099 --refresh 5s`,
	RunE: runStatus,
}

var (
	// Status flags
	statusAddr    string
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().StringVar(&statusAddr, "addr", "localhost:8099", "API 서버 주소")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 3*time.Second, "갱신 간격")
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CoinPulse Status Monitor ===")
	fmt.Printf("Target: http://%s | Refresh: %v\n", statusAddr, statusRefresh)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Status monitoring loop
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	// Initial display
	displayStatus()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n✅ Status monitor stopped")
			return nil

		case <-ticker.C:
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")

			fmt.Println("=== CoinPulse Status Monitor ===")
			fmt.Printf("Target: http://%s | Last update: %s\n\n", statusAddr, time.Now().Format("15:04:05"))

			displayStatus()
		}
	}
}

func displayStatus() {
	stats, err := fetchStats()
	if err != nil {
		fmt.Printf("❌ Stats unavailable: %v\n", err)
		fmt.Println("\nPress Ctrl+C to stop")
		return
	}

	fmt.Println("📊 Stream")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-15s %10v\n", "Subscribers:", stats["subscribers"])
	fmt.Printf("%-15s %10v\n", "Dropped:", stats["dropped_ticks"])
	fmt.Println()

	if transformers, ok := stats["transformers"].([]interface{}); ok {
		fmt.Println("⚙️  Transformers")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		for _, raw := range transformers {
			t, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("%-6v %-8v processed=%v dups=%v malformed=%v\n",
				t["timeframe"], t["kind"], t["processed"], t["duplicates"], t["malformed"])
		}
		fmt.Println()
	}

	fmt.Println("Press Ctrl+C to stop")
}

func fetchStats() (map[string]interface{}, error) {
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://%s/api/stats", statusAddr))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	return body.Data, nil
}
