// Package terminal implements the interactive command-line mode for the rayo
// agent.
//
// The operator types a message at the "You:" prompt; each message runs one
// agent turn. Tool activity and the model's reasoning are shown dimmed,
// failures in red, and final answers are rendered as markdown unless plain
// output was requested.
//
// Operations the safety policy marks as needing confirmation are previewed
// in a bordered box (a unified diff for patches, the command line for shell
// commands) followed by:
//
//	Proceed with this operation? [y/N]
//
// Only "y" or "yes" approves. Ctrl-C during a turn cancels the model call,
// the confirmation or the running command and returns to the prompt.
//
// # Usage
//
//	a, err := agent.New(cfg, client, logger)
//	if err != nil {
//	    // handle error
//	}
//	term := terminal.New(a)
//	err = term.Run(ctx, initialPrompt)
//
// The session ends on exit, quit, q, /exit, /quit or end of input.
package terminal
