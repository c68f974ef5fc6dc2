package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/temario/internal/config"
)

// daemonAddr is the base URL of the local daemon. A wildcard bind is
// reached through loopback.
func daemonAddr() string {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}
	host := cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Daemon.Port))
}

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	temarioDir, err := config.EnsureTemarioDir()
	if err != nil {
		return fmt.Errorf("setup temario directory: %w", err)
	}

	temariodPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(temariodPath)
	cmd.Dir = temarioDir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr())
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'temario logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	temarioDir, err := config.TemarioDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(temarioDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	addr := daemonAddr()
	resp, err := http.Get(addr + "/v1/status")
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		UptimeSeconds int    `json:"uptime_seconds"`
		Storage       string `json:"storage"`
		Cache         string `json:"cache"`
		SessionStore  string `json:"session_store"`
		Events        bool   `json:"events"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Printf("Storage:   %s\n", status.Storage)
	fmt.Printf("Cache:     %s\n", status.Cache)
	fmt.Printf("Sessions:  %s\n", status.SessionStore)
	fmt.Printf("Events:    %t\n", status.Events)
	fmt.Printf("Address:   %s\n", addr)

	return nil
}

// cmdLogs shows the tail of the daemon log
func cmdLogs() error {
	temarioDir, err := config.TemarioDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(temarioDir, "logs", "temariod.log")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent logs
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	reader := bufio.NewReader(file)
	// Skip partial first line if we seeked
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	return scanner.Err()
}

// cmdConfig prints the effective configuration
func cmdConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Temario Configuration")

	fmt.Println("\nDaemon:")
	fmt.Printf("  bind: %s\n", cfg.Addr())
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)
	fmt.Printf("  rate_limit: %d/s (burst %d)\n", cfg.Daemon.RateLimitPerSecond, cfg.Daemon.RateLimitBurst)

	fmt.Println("\nStorage:")
	fmt.Printf("  driver: %s\n", cfg.Storage.Driver)
	switch cfg.Storage.Driver {
	case "sqlite":
		path, _ := cfg.SQLitePath()
		fmt.Printf("  path: %s\n", path)
	case "postgres":
		fmt.Printf("  url: %s\n", checkmark(cfg.Storage.PostgresURL != ""))
	case "memory":
		fmt.Printf("  fixture: %s\n", cfg.Storage.FixturePath)
	}

	fmt.Println("\nCache:")
	fmt.Printf("  driver: %s ttl=%s\n", cfg.Cache.Driver, cfg.Cache.TTL)
	if cfg.Cache.Driver == "redis" {
		fmt.Printf("  redis: %s db=%d\n", cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB)
	}

	fmt.Println("\nSelection:")
	fmt.Printf("  max_count: %d\n", cfg.Selection.MaxCount)
	fmt.Printf("  active_window: %d\n", cfg.Selection.ActiveWindow)
	fmt.Printf("  default_failed_order: %s\n", cfg.Selection.DefaultFailedOrder)

	fmt.Println("\nAdaptive:")
	fmt.Printf("  warmup=%d window=%d upper=%.2f lower=%.2f\n",
		cfg.Adaptive.WarmupAnswers, cfg.Adaptive.TrailingWindow,
		cfg.Adaptive.UpperThreshold, cfg.Adaptive.LowerThreshold)

	fmt.Println("\nSessions:")
	fmt.Printf("  store: %s ttl=%s\n", cfg.Sessions.Store, cfg.Sessions.TTL)

	fmt.Println("\nEvents:")
	fmt.Printf("  enabled: %t\n", cfg.Events.Enabled)

	if path, err := config.ConfigPath(); err == nil {
		fmt.Printf("\nConfig path: %s\n", path)
	}
	return nil
}

func checkmark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning() bool {
	client := http.Client{Timeout: time.Second}
	resp, err := client.Get(daemonAddr() + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the temariod binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("temariod"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "temariod")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/temariod",
		"./temariod",
		"./cmd/temariod/temariod",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("temariod binary not found (build with 'go build ./cmd/temariod')")
}
