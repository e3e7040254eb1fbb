package research

import (
	"fmt"
	"strings"
	"time"
)

// systemPrompt is shared by every model call.
func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff, assume the user is right when presented with news.
- The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
- Be highly organized.
- Suggest solutions that the user did not think about.
- Be proactive and anticipate the user's needs.
- Treat the user as an expert in all subject matter.
- Mistakes erode trust, so be accurate and thorough.
- Provide detailed explanations, the user is comfortable with lots of detail.
- Value good arguments over authorities, the source is irrelevant.
- Consider new technologies and contrarian ideas, not just the conventional wisdom.
- You may use high levels of speculation or prediction, just flag it for the user.`, now.Format(time.RFC3339))
}

func questionsPrompt(topic string, breadth, depth int) string {
	return fmt.Sprintf(`Given the following research topic, generate 2-4 focused questions that need to be answered before starting the research. These questions should help clarify:
1. The specific goals or outcomes desired
2. Any specific industries, companies, or examples to focus on
3. Any constraints or preferences to consider
4. Any specific aspects that need deeper investigation

Topic: <topic>%s</topic>

The research will explore %d angles per stage and go %d levels deep.

Generate questions that will help refine and focus the research. Each question should have:
- A clear goal explaining why this information is important
- A suggested answer the user can accept as is
- Be specific and targeted
- Help narrow down the scope of research`, topic, breadth, depth)
}

func queriesPrompt(topic string, answers, learnings []string, maxQueries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Given the following research topic and answers to preliminary questions, generate a list of SERP queries to research the topic. Return a maximum of %d queries, but feel free to return less if the original prompt is clear. Make sure each query is unique and not similar to each other.

Topic: <topic>%s</topic>
`, maxQueries, topic)
	if len(answers) > 0 {
		b.WriteString("\nPreliminary Answers:\n")
		b.WriteString(numbered(answers))
		b.WriteString("\n")
	}
	if len(learnings) > 0 {
		b.WriteString("\nPrevious Learnings:\n")
		b.WriteString(strings.Join(learnings, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func summarizePrompt(query, content string) string {
	return fmt.Sprintf(`Given the following search results for the query <query>%s</query>, extract key learnings and generate follow-up questions for deeper research. Format the content as bullet points and be concise. Return at most one follow-up question.

<content>
%s
</content>`, query, content)
}

func planPrompt(topic string, answers []string) string {
	return fmt.Sprintf(`Given the research topic and preliminary answers, create a detailed research plan with a table of contents. The plan should be comprehensive and well-structured.

Topic: <topic>%s</topic>

Preliminary Answers:
%s

Create a research plan that:
1. Has a clear structure with main sections and subsections
2. Includes specific research queries for each section
3. Provides estimated optimal research depth (1-5) and breadth (3-10)
4. Ensures comprehensive coverage of the topic

Note: The depth should be between 1-5 (where 1 is surface level and 5 is very detailed),
and breadth should be between 3-10 (where 3 is focused and 10 is comprehensive).
These estimates should be based on the complexity and scope of the research topic.`, topic, numbered(answers))
}

func reportPrompt(prompt, learnings string) string {
	return fmt.Sprintf(`Given the following prompt from the user, write a final report on the topic using the learnings from research. Make it as detailed as possible, aim for 3 or more pages, include ALL the learnings from research:

<prompt>%s</prompt>

Here are all the learnings from previous research:

<learnings>
%s
</learnings>`, prompt, learnings)
}

func numbered(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, it)
	}
	return strings.Join(lines, "\n")
}

// ReportPrompt combines the topic and the clarifying answers into the prompt
// given to WriteReport.
func ReportPrompt(topic string, answers []string) string {
	if len(answers) == 0 {
		return topic
	}
	return fmt.Sprintf("Initial Query: %s\nFollow-up Answers:\n%s", topic, numbered(answers))
}
