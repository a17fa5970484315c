package exam

import (
	"fmt"
	"strings"

	"github.com/pavelanni/dialoglog/internal/model"
)

// Question types recorded in the log. The first question of a session is
// always initial; later questions build on earlier performance.
const (
	QuestionTypeInitial    = "initial"
	QuestionTypeContextual = "contextual"
)

func buildQuestionSystemPrompt(topic model.TopicInfo, number, total int, history []EvaluationSummary) string {
	var sb strings.Builder
	sb.WriteString("You are an examiner conducting an oral exam. You ask one question at a time.\n\n")
	sb.WriteString("TOPIC: " + topic.Name + "\n")
	sb.WriteString("SUBJECT: " + topic.Subject + "\n")
	if topic.Difficulty != "" {
		sb.WriteString("DIFFICULTY: " + topic.Difficulty + "\n")
	}
	sb.WriteString(fmt.Sprintf("\nThis is question %d of %d.\n", number, total))

	if len(history) > 0 {
		sb.WriteString("\nEARLIER PERFORMANCE (score characteristics only; the student's answer texts are never shared with you):\n")
		for _, s := range history {
			sb.WriteString(fmt.Sprintf("- Q%d [%s, %s]: %.1f/%d", s.QuestionNumber, s.TopicLevel, s.QuestionType, s.TotalScore, model.MaxQuestionScore))
			if s.Weaknesses != "" {
				sb.WriteString(", weaknesses: " + s.Weaknesses)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\nINSTRUCTIONS:\n")
		sb.WriteString("- Build on the performance above: probe the listed weaknesses or move to an untouched aspect of the topic.\n")
		sb.WriteString("- Do not repeat an earlier question.\n")
		sb.WriteString(`- Set question_type to "contextual".` + "\n")
	} else {
		sb.WriteString("\nINSTRUCTIONS:\n")
		sb.WriteString("- Open with a question covering a central aspect of the topic.\n")
		sb.WriteString(`- Set question_type to "initial".` + "\n")
	}
	sb.WriteString("- Ask in the language the topic name is written in.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"question": "<the question>", "topic_level": "<the aspect of the topic it covers>", "question_type": "<initial or contextual>", "key_points": "<what a complete answer must mention>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildEvaluationSystemPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are an exam evaluator. A student has answered the following question:\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	if kp, ok := q.Metadata["key_points"].(string); ok && kp != "" {
		sb.WriteString("KEY POINTS OF A COMPLETE ANSWER (not shown to the student):\n" + kp + "\n\n")
	}
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString(fmt.Sprintf("- Score correctness, completeness and understanding, each 0 to %d.\n", model.MaxQuestionScore))
	sb.WriteString(fmt.Sprintf("- total_score is your overall grade for the answer, 0 to %d. It is not necessarily the mean of the criteria.\n", model.MaxQuestionScore))
	sb.WriteString("- Name concrete strengths and weaknesses; both are quoted back to the student.\n")
	sb.WriteString("- Write the feedback in the language the question is written in.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"total_score": <number>, "criteria_scores": {"correctness": <number>, "completeness": <number>, "understanding": <number>}, "strengths": "<text>", "weaknesses": "<text>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildRecommendationsSystemPrompt(topic model.TopicInfo, history []EvaluationSummary) string {
	var sb strings.Builder
	sb.WriteString("You are an examiner wrapping up an oral exam on the topic below. ")
	sb.WriteString("Based on the per-question results, produce short study recommendations.\n\n")
	sb.WriteString("TOPIC: " + topic.Name + " (" + topic.Subject + ")\n")
	if len(history) > 0 {
		sb.WriteString("\nRESULTS:\n")
		for _, s := range history {
			sb.WriteString(fmt.Sprintf("- Q%d [%s]: %.1f/%d", s.QuestionNumber, s.TopicLevel, s.TotalScore, model.MaxQuestionScore))
			if s.Weaknesses != "" {
				sb.WriteString(", weaknesses: " + s.Weaknesses)
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("\nNo answers were evaluated; recommend how to prepare for a first attempt.\n")
	}
	sb.WriteString(fmt.Sprintf("\nGive at most %d recommendations, most important first, ", maxRecommendations))
	sb.WriteString("in the language the topic name is written in.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with this field:\n")
	sb.WriteString(`{"recommendations": ["<recommendation>", "..."]}`)
	sb.WriteString("\n")
	return sb.String()
}
