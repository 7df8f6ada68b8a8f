package cmd

import (
	"fmt"
)

// Completion outputs shell completion scripts
func (e *Env) Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Fprint(e.Out, bashCompletion)
	case "zsh":
		fmt.Fprint(e.Out, zshCompletion)
	case "fish":
		fmt.Fprint(e.Out, fishCompletion)
	default:
		fmt.Fprintf(e.Err, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		e.Exit(1)
	}
}

const bashCompletion = `_passvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init useradd add get update rm ls status passwd compact keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        get|update|rm)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-u -q -p --name --url --username --desc" -- "$cur"))
            else
                local names
                names=$(passvault ls 2>/dev/null | grep -E '^  ' | awk '{print $1}')
                COMPREPLY=($(compgen -W "$names" -- "$cur"))
            fi
            ;;
        add)
            COMPREPLY=($(compgen -W "-u --url --username --desc" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _passvault passvault
`

const zshCompletion = `#compdef passvault

_passvault() {
    local -a commands
    commands=(
        'init:Create a .passvault vault in current directory'
        'useradd:Add a user to a multi-user vault'
        'add:Encrypt and store a secret'
        'get:Decrypt and show a secret'
        'update:Change a stored secret'
        'rm:Remove secrets from the vault'
        'ls:List stored secrets'
        'status:Show vault status'
        'passwd:Change master password'
        'compact:Compact vault to reclaim disk space'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'passvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                get|update|rm)
                    _arguments '*:secret:_passvault_names'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'passvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_passvault_names() {
    local -a names
    names=(${(f)"$(passvault ls 2>/dev/null | grep -E '^  ' | awk '{print $1}')"})
    _describe -t names 'secrets' names
}

_passvault "$@"
`

const fishCompletion = `# passvault fish completions

set -l commands init useradd add get update rm ls status passwd compact keyring help completion

complete -c passvault -f

# Commands
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a .passvault vault'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a useradd -d 'Add a user'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a add -d 'Store a secret'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a get -d 'Show a secret'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a update -d 'Change a secret'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove secrets'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List secrets'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change master password'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact vault'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c passvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# secret names
complete -c passvault -n "__fish_seen_subcommand_from get update rm" -a "(passvault ls 2>/dev/null | string match -r '^  \S+' | string trim)"

# keyring subcommands
complete -c passvault -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c passvault -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c passvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
