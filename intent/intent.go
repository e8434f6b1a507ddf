// Package intent classifies transcribed utterances into dialogue mode
// switches before the reply producer runs.
package intent

import "regexp"

// Learning intents open a guided review conversation instead of the
// normal reply flow; exit intents leave it. Patterns cover both English
// and Chinese phrasings.
var (
	learningPattern = regexp.MustCompile(
		`(?is).*?(抗遗忘|学习|复习|练习|单词|英语|review|practice|study|vocabulary).*?`)

	exitPattern = regexp.MustCompile(
		`(?is).*?(结束|退出|不想学|stop|exit|quit|i'?m done).*?`)
)

// IsLearning reports whether the text asks to enter review mode.
func IsLearning(text string) bool {
	return learningPattern.MatchString(text)
}

// IsExit reports whether the text asks to leave review mode.
func IsExit(text string) bool {
	return exitPattern.MatchString(text)
}
