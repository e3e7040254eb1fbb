package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// askQuestions reads an answer to each question from in. An empty answer
// takes the suggested one; a question left without any answer is skipped.
func askQuestions(in *bufio.Reader, out io.Writer, questions []research.Question) []string {
	var answers []string
	for i, q := range questions {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, q.Question)
		if q.Goal != "" {
			fmt.Fprintf(out, "   (%s)\n", q.Goal)
		}
		if q.Type == research.QuestionChoice {
			for j, opt := range q.Options {
				fmt.Fprintf(out, "   %d) %s\n", j+1, opt)
			}
		}
		if q.SuggestedAnswer != "" {
			fmt.Fprintf(out, "   Suggested: %s\n", q.SuggestedAnswer)
		}
		if q.Type == research.QuestionMultiline {
			fmt.Fprint(out, "   Answer (end with an empty line): ")
		} else {
			fmt.Fprint(out, "   Answer: ")
		}

		answer := readAnswer(in, q)
		if answer == "" {
			answer = q.SuggestedAnswer
		}
		if answer == "" {
			continue
		}
		answers = append(answers, fmt.Sprintf("%s %s", q.Question, answer))
	}
	return answers
}

func readAnswer(in *bufio.Reader, q research.Question) string {
	if q.Type == research.QuestionMultiline {
		var lines []string
		for {
			line, err := readLine(in)
			if line == "" || err != nil {
				if line != "" {
					lines = append(lines, line)
				}
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}

	line, _ := readLine(in)
	if q.Type == research.QuestionChoice {
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(q.Options) {
			return q.Options[n-1]
		}
	}
	return line
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	return strings.TrimSpace(line), err
}
