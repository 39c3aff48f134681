// Operator command line tool talking to a running pmm server's http reporter.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/TEENet-io/pmm-go/reporter"
)

const (
	ENV_SERVER_URL     = "PMM_SERVER_URL"
	DEFAULT_SERVER_URL = "http://127.0.0.1:8080"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()
	viper.SetDefault(ENV_SERVER_URL, DEFAULT_SERVER_URL)

	serverURL := viper.GetString(ENV_SERVER_URL)
	hr := reporter.NewHttpReader(serverURL)

	if _, err := hr.GetHello(); err != nil {
		fmt.Printf("Cannot reach pmm server at %s: %s\n", serverURL, err)
		return
	}

	fmt.Println(strings.Repeat("=", 30))
	fmt.Println("Welcome to pmm operator command line tool.")
	fmt.Printf("Connected to: %s\n", serverURL)
	fmt.Println(strings.Repeat("=", 30))

	// Create a cancelable context and signal handler for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handler to catch Ctrl-C.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		_captured := <-sig
		fmt.Printf("\nReceived interrupt signal, shutting down... %v\n", _captured)
		cancel()
		os.Exit(0)
	}()

	// gather user inputs
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Print options
		fmt.Println("What to do:")
		fmt.Println("1) View trade")
		fmt.Println("2) Commit trade")
		fmt.Println("3) Signal payment (start settlement)")
		fmt.Println("4) View queues")
		fmt.Println("5) List trades by status")
		fmt.Print("Type option and press Enter: ")

		// Wait for input.
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		var (
			out string
			err error
		)
		switch input {
		case "1":
			out, err = hr.GetTrade(askTradeId(scanner))
		case "2":
			out, err = hr.CommitTrade(askTradeId(scanner))
		case "3":
			out, err = hr.Settle(askTradeId(scanner))
		case "4":
			out, err = hr.GetQueues()
		case "5":
			fmt.Print("Enter status (COMMITTED, SETTLING, PAYMENT_SENT, SUBMITTED, FAILED): ")
			scanner.Scan()
			out, err = hr.GetTradesByStatus(strings.TrimSpace(scanner.Text()))
		default:
			fmt.Println("Unknown option, try again.")
			fmt.Println()
			continue
		}

		if err != nil {
			fmt.Printf("Request failed: %s\n", err)
		} else {
			fmt.Println(out)
		}
		fmt.Println()
	}
}

func askTradeId(scanner *bufio.Scanner) string {
	fmt.Print("Enter trade id (32 bytes hex): ")
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}
