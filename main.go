package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/illarion/passvault/cmd"
	"github.com/illarion/passvault/internal/config"
	"github.com/illarion/passvault/internal/logging"
)

// interruptGrace is how long a cancelled command may take to notice before
// the process exits anyway.
const interruptGrace = 2 * time.Second

func main() {
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchInterrupt(ctx, stop, interruptGrace, os.Stderr, memguard.SafeExit)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "init":
		runInit(ctx, args)
	case "useradd":
		runUserAdd(ctx, args)
	case "add":
		runAdd(ctx, args)
	case "get":
		runGet(ctx, args)
	case "update":
		runUpdate(ctx, args)
	case "rm":
		runRm(ctx, args)
	case "ls":
		runLs(ctx, args)
	case "status":
		runStatus(ctx, args)
	case "passwd":
		runPasswd(ctx, args)
	case "compact":
		runCompact(ctx, args)
	case "keyring":
		runKeyring(ctx, args)
	case "completion":
		runCompletion(ctx, args)
	case "help", "-h", "--help":
		if len(args) == 0 {
			printUsage()
			return
		}
		printCommandHelp(args[0])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// watchInterrupt is the only signal path. Commands see the cancelled ctx and
// exit through HandleError; one still blocked after grace (a password
// prompt, say) is ended with exit, which wipes locked memory first. stop
// restores default handling so a second interrupt terminates at once.
func watchInterrupt(ctx context.Context, stop context.CancelFunc, grace time.Duration, w io.Writer, exit func(int)) {
	go func() {
		<-ctx.Done()
		stop()
		time.Sleep(grace)
		fmt.Fprintln(w, "Interrupted")
		exit(130)
	}()
}

// newEnv loads the configuration and logger. Commands build it only after
// their flags parse, so help and usage errors never touch the environment.
func newEnv() *cmd.Env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return cmd.NewEnv(cfg, log)
}

// parse lets flags follow positional arguments
func parse(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func entryFlags(fs *flag.FlagSet) *cmd.EntryFlags {
	f := &cmd.EntryFlags{}
	fs.StringVar(&f.User, "u", "", "Vault identity to act as")
	fs.StringVar(&f.Username, "username", "", "Account username stored with the secret")
	fs.StringVar(&f.URL, "url", "", "URL stored with the secret")
	fs.StringVar(&f.Description, "desc", "", "Description stored with the secret")
	return f
}

func runInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	user := fs.String("u", "", "Username of the first identity")
	parse(fs, args)

	newEnv().Init(ctx, *user)
}

func runUserAdd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	rest := parse(fs, args)

	newEnv().UserAdd(ctx, first(rest))
}

func runAdd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	flags := entryFlags(fs)
	rest := parse(fs, args)

	newEnv().Add(ctx, first(rest), *flags)
}

func runGet(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	quiet := fs.Bool("q", false, "Print only the secret value")
	rest := parse(fs, args)

	newEnv().Get(ctx, first(rest), *user, *quiet)
}

func runUpdate(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	flags := entryFlags(fs)
	fs.StringVar(&flags.Name, "name", "", "Rename the secret")
	newValue := fs.Bool("p", false, "Prompt for a new secret value")
	rest := parse(fs, args)

	newEnv().Update(ctx, first(rest), *flags, *newValue)
}

func runRm(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	rest := parse(fs, args)

	newEnv().Remove(ctx, rest, *user)
}

func runLs(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	parse(fs, args)

	newEnv().Ls(ctx, *user)
}

func runStatus(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	parse(fs, args)

	newEnv().Status(ctx, *user)
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	newUser := fs.String("new-user", "", "Rename the identity")
	parse(fs, args)

	newEnv().Passwd(ctx, *user, *newUser)
}

func runCompact(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	parse(fs, args)

	newEnv().Compact(ctx)
}

func runKeyring(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("keyring", flag.ExitOnError)
	user := fs.String("u", "", "Vault identity to act as")
	rest := parse(fs, args)

	switch first(rest) {
	case "save":
		newEnv().KeyringSave(ctx, *user)
	case "delete":
		newEnv().KeyringDelete(*user)
	case "status":
		newEnv().KeyringStatus(*user)
	default:
		fmt.Fprintln(os.Stderr, "Usage: passvault keyring <save|delete|status>")
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: passvault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	newEnv().Completion(args[0])
}

func printUsage() {
	fmt.Println("passvault - Password vault for the command line")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  passvault <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a .passvault vault in current directory")
	fmt.Println("  useradd     Add another identity (multi-user vaults)")
	fmt.Println("  add         Encrypt and store a secret")
	fmt.Println("  get         Decrypt and print a secret")
	fmt.Println("  update      Change a secret's details or value")
	fmt.Println("  rm          Remove secrets from the vault")
	fmt.Println("  ls          List stored secrets")
	fmt.Println("  status      Show vault status")
	fmt.Println("  passwd      Change master password")
	fmt.Println("  compact     Compact vault to reclaim disk space")
	fmt.Println("  keyring     Manage the master password in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  passvault init                          # Create new vault")
	fmt.Println("  passvault add github --url github.com   # Store a secret")
	fmt.Println("  passvault get -q github | pbcopy        # Copy a secret")
	fmt.Println("  passvault status                        # Check vault status")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  PASSVAULT_PATH             Vault file (default .passvault)")
	fmt.Println("  PASSVAULT_PASSWORD         Master password for non-interactive use")
	fmt.Println("  PASSVAULT_SINGLE_IDENTITY  false enables multiple users (default true)")
	fmt.Println("  PASSVAULT_LOG_LEVEL        debug, info, warn, error (default warn)")
	fmt.Println("  PASSVAULT_CIPHER           aes-256-gcm or xchacha20-poly1305")
	fmt.Println()
	fmt.Println("Use 'passvault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("passvault init [-u <username>]")
		fmt.Println()
		fmt.Println("Creates a .passvault vault file in the current directory.")
		fmt.Println("Prompts for a master password. Only an Argon2id hash of it is stored,")
		fmt.Println("so it cannot be recovered if forgotten.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -u    Username of the first identity (multi-user vaults)")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  passvault init")
		fmt.Println("  PASSVAULT_SINGLE_IDENTITY=false passvault init -u alice")
	case "useradd":
		fmt.Println("passvault useradd <username>")
		fmt.Println()
		fmt.Println("Adds an identity with its own master password and secrets.")
		fmt.Println("Requires PASSVAULT_SINGLE_IDENTITY=false.")
	case "add":
		fmt.Println("passvault add [-u user] [--username u] [--url url] [--desc text] <name>")
		fmt.Println()
		fmt.Println("Encrypts a new secret. The value is read without echo.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  passvault add github --username alice --url github.com")
	case "get":
		fmt.Println("passvault get [-u user] [-q] <name|id>")
		fmt.Println()
		fmt.Println("Decrypts a secret and prints it with its details.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -q    Print only the value")
	case "update":
		fmt.Println("passvault update [-u user] [-p] [--name new] [--username u] [--url url] [--desc text] <name|id>")
		fmt.Println()
		fmt.Println("Changes the details of a secret. Empty flags keep the current value.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -p        Also prompt for a new secret value")
		fmt.Println("  --name    Rename the secret; the ID stays the same")
	case "rm":
		fmt.Println("passvault rm [-u user] <name|id> [name...]")
		fmt.Println()
		fmt.Println("Removes secrets from the vault and compacts it.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  passvault rm github gitlab")
	case "ls":
		fmt.Println("passvault ls [-u user]")
		fmt.Println()
		fmt.Println("Lists stored secrets with their URL and description.")
		fmt.Println("Does not require a password.")
	case "status":
		fmt.Println("passvault status [-u user]")
		fmt.Println()
		fmt.Println("Shows vault status including:")
		fmt.Println("  - Vault ID, creation and modification times")
		fmt.Println("  - Cipher and secret count")
		fmt.Println("  - Keyring and git state")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "passwd":
		fmt.Println("passvault passwd [-u user] [--new-user name]")
		fmt.Println()
		fmt.Println("Changes the master password, and optionally the username.")
		fmt.Println("Requires both the current and new passwords.")
		fmt.Println("Re-encrypts all secrets with the new password.")
	case "compact":
		fmt.Println("passvault compact")
		fmt.Println()
		fmt.Println("Compacts the .passvault database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'rm' and 'passwd' commands,")
		fmt.Println("but can be run manually if needed.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "keyring":
		fmt.Println("passvault keyring [-u user] <save|delete|status>")
		fmt.Println()
		fmt.Println("Manages the master password in the OS keyring.")
		fmt.Println("A stored password is tried before prompting.")
		fmt.Println()
		fmt.Println("Subcommands:")
		fmt.Println("  save      Verify the password and store it")
		fmt.Println("  delete    Remove the stored password")
		fmt.Println("  status    Report whether a password is stored")
	case "completion":
		fmt.Println("passvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(passvault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(passvault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  passvault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
