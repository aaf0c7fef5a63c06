// Package main runs the textsift interactive client: an authenticated
// shell for uploading documents to the analysis service, tracking the
// processing workflow, searching results and triggering exports.
package main

import (
	"bufio"
	"cmp"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/avetrov/textsift/internal/client/api"
	"github.com/avetrov/textsift/internal/client/session"
	"github.com/avetrov/textsift/internal/client/workflow"
	"github.com/avetrov/textsift/internal/config"
	"github.com/avetrov/textsift/internal/logger"
	"github.com/avetrov/textsift/internal/models"
)

var (
	version   string
	buildDate string
)

// shellNotifier renders workflow notices on the terminal.
type shellNotifier struct{}

func (shellNotifier) Notify(msg string) { color.Green("%s", msg) }
func (shellNotifier) Alert(msg string)  { color.Red("%s", msg) }

// prompt reads one trimmed line from the scanner.
func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// repl runs the interactive shell loop, dispatching user intents into
// the session manager and the workflow orchestrator.
func repl(sess *session.Manager, apiClient *api.Client, wf *workflow.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("textsift> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			fmt.Println("Account:  register, login, logout, whoami, profile")
			fmt.Println("Workflow: select <path>, analyze, results, search <query>, export, summary <email>")
			fmt.Println("Other:    state, help, exit")
		case "register":
			email := prompt(scanner, "Email: ")
			password := prompt(scanner, "Password: ")
			name := prompt(scanner, "Name: ")
			if err := apiClient.Register(ctx, email, password, name); err != nil {
				color.Red("%v", err)
				continue
			}
			color.Green("Registered. You can log in now.")
		case "login":
			email := prompt(scanner, "Email: ")
			password := prompt(scanner, "Password: ")
			identity, err := apiClient.Login(ctx, email, password)
			if err != nil {
				color.Red("%v", err)
				continue
			}
			if err := sess.Login(identity); err != nil {
				color.Red("%v", err)
				continue
			}
			color.Green("Logged in as %s", identity.Email)
		case "logout":
			sess.Logout()
			fmt.Println("Logged out")
		case "whoami":
			if identity, ok := sess.Current(); ok {
				fmt.Printf("Name: %s\nEmail: %s\n", identity.Name, identity.Email)
			} else {
				fmt.Println("Not logged in")
			}
		case "profile":
			name := prompt(scanner, "New name (empty keeps current): ")
			email := prompt(scanner, "New email (empty keeps current): ")
			if err := sess.UpdateIdentity(models.Identity{Name: name, Email: email}); err != nil {
				color.Red("%v", err)
				continue
			}
			color.Green("Profile updated")
		case "select":
			if !requireLogin(sess) {
				continue
			}
			if len(args) < 2 {
				fmt.Println("Usage: select <path>")
				continue
			}
			_ = wf.SelectFile(strings.Join(args[1:], " "))
		case "analyze":
			if !requireLogin(sess) {
				continue
			}
			_ = wf.StartAnalysis(ctx)
		case "results":
			printResults(wf)
		case "search":
			if !requireLogin(sess) {
				continue
			}
			if len(args) < 2 {
				fmt.Println("Usage: search <query>")
				continue
			}
			if err := wf.Search(ctx, strings.Join(args[1:], " ")); err == nil {
				printHits(wf.SearchResults())
			}
		case "export":
			if !requireLogin(sess) {
				continue
			}
			_ = wf.ExportDocument(ctx)
		case "summary":
			if !requireLogin(sess) {
				continue
			}
			if len(args) < 2 {
				fmt.Println("Usage: summary <email>")
				continue
			}
			_ = wf.SendSummary(ctx, args[1])
		case "state":
			fmt.Println(wf.State())
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// requireLogin guards workflow commands behind an authenticated session.
func requireLogin(sess *session.Manager) bool {
	if sess.IsAuthenticated() {
		return true
	}
	color.Red("Please log in first.")
	return false
}

// printResults renders the workflow state and the analysis outcome.
func printResults(wf *workflow.Orchestrator) {
	doc := wf.Document()
	fmt.Printf("State: %s\n", wf.State())
	if doc.Path != "" {
		fmt.Printf("File: %s\n", doc.Path)
	}
	if doc.FileID != "" {
		fmt.Printf("File ID: %s\n", doc.FileID)
	}
	if msg := wf.LastError(); msg != "" {
		fmt.Printf("Last error: %s\n", msg)
	}

	res := wf.Result()
	if res == nil {
		return
	}
	fmt.Printf("Documents processed: %d\n", res.DocumentsProcessed)
	fmt.Printf("Sentiment score: %g\n", res.SentimentScore)
	if len(res.PatternsFound) == 0 {
		fmt.Println("No specific patterns found.")
	} else {
		fmt.Printf("Patterns: %s\n", strings.Join(res.PatternsFound, ", "))
	}
}

// printHits renders search results in server rank order.
func printHits(hits []models.SearchResult) {
	if len(hits) == 0 {
		fmt.Println("No results.")
		return
	}
	fmt.Printf("Search results (%d):\n", len(hits))
	for _, h := range hits {
		fmt.Printf("  %s  score=%.2f  %s\n", h.ChunkID, h.Score, h.Snippet)
	}
}

func main() {
	var showVer bool
	flag.BoolVar(&showVer, "version", false, "show build version and date")

	options := config.Parse()

	if showVer {
		fmt.Printf("textsift client\nVersion: %s\nBuild Date: %s\n",
			cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	log := logger.New()
	if err := log.Init("warn"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()

	sess := session.New(options.SessionFile, log.Log)
	sess.Bootstrap()

	httpClient := api.NewHTTPClient(time.Duration(options.TimeoutSeconds) * time.Second)
	apiClient := api.New(httpClient, options.ServerURL, log.Log)
	wf := workflow.New(apiClient, shellNotifier{}, workflow.DirSaver{Dir: "."}, log.Log)

	if identity, ok := sess.Current(); ok {
		fmt.Printf("Welcome back, %s\n", cmp.Or(identity.Name, identity.Email))
	}

	repl(sess, apiClient, wf)
}
