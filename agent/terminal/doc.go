// Package terminal runs the agent as a line-oriented chat on stdin/stdout.
//
// Each line typed after the "> " prompt is one user turn. Streamed replies are
// printed as fragments arrive; sync delivery prints the whole reply at once.
// /quit and /exit end the session, as does end of input.
//
//	a := agent.New(engine, agent.DefaultSystemPrompt)
//	err := terminal.New(a, terminal.WithLogger(logger)).Run(ctx, "")
//
// In prompt mode each tool call waits for a y/n answer on the next input line.
// Tool verbosity decides whether calls, and then their results, are echoed.
// When the model backend fails the user only sees a short generic message;
// status and body go to the log.
package terminal
