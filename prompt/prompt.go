// Package prompt renders the generation, judging and answering prompts.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/brunobiangulo/synqa/sampler"
)

// MaxGenerationChars is the longest generation prompt that is sent. Longer
// prompts almost always mean a malformed source row.
const MaxGenerationChars = 100_000

// ErrPromptTooLong is returned for generation prompts over
// MaxGenerationChars. Such prompts are skipped, never retried.
var ErrPromptTooLong = errors.New("prompt: generation prompt too long")

var generationGuidelines = map[string]string{
	string(sampler.Arbitrary):      "The QUESTION must be answerable using one or more given SOURCES. Strive for connecting SOURCES in a logical manner.",
	string(sampler.StrictMultiple): "The QUESTION must be answerable using as many as possible given SOURCES. However, produce a single QUESTION that only uses logically connected SOURCES.",

	string(sampler.YesNo):        "The QUESTION must be answerable by strictly only a 'Yes' or 'No'. Please do not use any other words in the answer.",
	string(sampler.Value):        "The QUESTION must be answerable by a single value.",
	string(sampler.WordAnswer):   "The QUESTION must be answerable by one to five words, without forming a full sentence.",
	string(sampler.OneSentence):  "The QUESTION must be answerable by a single sentence.",
	string(sampler.OpenEndShort): "The QUESTION must be answerable by a short open-ended answer.",
	string(sampler.OpenEndLong):  "The QUESTION must be answerable by a long open-ended answer.",

	string(sampler.Replicate): "The QUESTION must be answerable by a simple replication of parts of the SOURCES or a simple summary of SOURCES.",
	string(sampler.Reason):    "The QUESTION must be answerable by a reasoning process over the SOURCES.",

	string(sampler.TextOnly):   "The QUESTION must be answerable with only the contents of a text.",
	string(sampler.TableOnly):  "The QUESTION must be answerable with only the contents of a table, including its caption.",
	string(sampler.Mixed):      "The QUESTION must be answerable through a combination of multiple modalities between text, table, or others.",
	string(sampler.Clustering): "The QUESTION can make use of a combination of multiple modalities between text, table, or others.",

	string(sampler.Simple):  "The QUESTION is very simple and straightforward to answer given the SOURCES.",
	string(sampler.Medium):  "The QUESTION is moderately complex and requires some reasoning to answer, given the SOURCES.",
	string(sampler.Complex): "The QUESTION is very complex and requires a lot of reasoning to answer, given the SOURCES.",
}

var answerGuidelines = map[sampler.AnswerType]string{
	sampler.YesNo:        "The QUESTION must be answered by strictly only a 'Yes' or 'No'.",
	sampler.Value:        "The QUESTION must be answered by a single value.",
	sampler.WordAnswer:   "The QUESTION must be answered by one to five words, without forming a full sentence.",
	sampler.OneSentence:  "The QUESTION must be answered by a single sentence.",
	sampler.OpenEndShort: "The QUESTION must be answered by a short open-ended answer.",
	sampler.OpenEndLong:  "The QUESTION must be answered by a long open-ended answer.",
}

// Guidelines renders the numbered guideline list for a configuration, one
// line per field in the order answer type, reasoning, modality, quantity,
// difficulty.
func Guidelines(cfg sampler.Configuration) string {
	keys := []string{
		string(cfg.AnswerType),
		string(cfg.Reasoning),
		string(cfg.Modality),
		string(cfg.Quantity),
		string(cfg.Difficulty),
	}
	var b strings.Builder
	n := 0
	for _, k := range keys {
		text, ok := generationGuidelines[k]
		if !ok {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, text)
	}
	return b.String()
}

// AnswerGuideline returns the answer-side guideline for an answer type.
func AnswerGuideline(t sampler.AnswerType) string {
	return answerGuidelines[t]
}

// Generation renders the question-generation prompt for a source block.
func Generation(domain, block, guidelines string) (string, error) {
	p := fmt.Sprintf(generationPrompt, domain, block, guidelines)
	if n := utf8.RuneCountInString(p); n > MaxGenerationChars {
		return "", fmt.Errorf("%w: %d characters", ErrPromptTooLong, n)
	}
	return p, nil
}

// Faithfulness renders the 1-5 faithfulness rubric.
func Faithfulness(sourceBlock, question, answer string) string {
	return fmt.Sprintf(faithfulnessPrompt, sourceBlock, question, answer)
}

// FormalCheck renders the yes/no formal compliance check.
func FormalCheck(question, guideline, answer string) string {
	return fmt.Sprintf(formalCheckPrompt, question, guideline, answer)
}

// Answering renders the full-context answering prompt.
func Answering(context, question, guideline string) string {
	return fmt.Sprintf(answeringPrompt, context, question, guideline)
}

// Correctness renders the 1-5 correctness rubric.
func Correctness(question, truth, proposed string) string {
	return fmt.Sprintf(correctnessPrompt, question, truth, proposed)
}
