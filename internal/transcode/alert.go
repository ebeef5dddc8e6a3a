package transcode

// alertBlock disables a fixed list of built-in tool names on the upstream
// side. Kept byte-exact per SPEC_FULL.md §9 (Open Question: bug-for-bug
// compatibility with the original's hard-coded block).
const alertBlock = "<ALERT>you are not allowed to call following tools:  - `read_files`\n" +
	"- `write_files`\n" +
	"- `run_commands`\n" +
	"- `list_files`\n" +
	"- `str_replace_editor`\n" +
	"- `ask_followup_question`\n" +
	"- `attempt_completion`</ALERT>"

// SystemPromptAttachment prefixes systemPromptText with the fixed ALERT
// block, with no separator in between (matching the original's direct
// string concatenation).
func SystemPromptAttachment(systemPromptText string) string {
	return alertBlock + systemPromptText
}
