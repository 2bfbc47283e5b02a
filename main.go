package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

var secretKeys = []string{"PASSWORD", "TOKEN", "WEBHOOK"}

func printConfig() {
	myEnv, err := godotenv.Read()
	if err != nil {
		return
	}
	keys := make([]string, 0, len(myEnv))
	for key := range myEnv {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("=========Config============")
	for _, key := range keys {
		value := myEnv[key]
		for _, secret := range secretKeys {
			if strings.Contains(key, secret) && value != "" {
				value = "******"
			}
		}
		fmt.Println(key + ": " + value)
	}
	fmt.Println("=========End============")
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded, using the process environment")
	}
	printConfig()

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	runtime.GOMAXPROCS(runtime.NumCPU())
	env, closeEnv, err := buildEnvironment(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not build environment: %v\n", err)
		os.Exit(1)
	}
	defer closeEnv()

	s, err := NewServer(cfg, env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)

	s.Run()
	for range s.workers {
		<-s.finish
	}
	fmt.Println("Server stopped gracefully!")
}
