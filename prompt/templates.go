package prompt

const generationPrompt = `You are a domain expert in %s and are provided with SOURCES from a domain document. Your task is to create a QUESTION and ANSWER based on the SOURCES.


Use the following SOURCES:
[Begin of SOURCES]
%s
[End of SOURCES]


Create a QUESTION and an ANSWER for the QUESTION following these GUIDELINES:
%s
Your task is to create a QUESTION that is realistic in the context of a question-answering benchmark over reports. Do not come up with artificial questions that would never appear in reality. In reality, the provided sources appear throughout the entire document. Thus, do not refer to a source identifier or assume that the source is standalone. The QUESTION should be designed to make sense with respect to the entire document (that you have no full access to).

Please output the answer in a JSON format using exactly the keys "question", "answer", and "sources". "question" contains the QUESTION you have produced. "answer" contains the ANSWER to the question. "sources" includes the source identifiers in the SOURCES (e.g., ["Source_1", "Source_2"]). Strictly cite only the sources that were actually used to create the question, not necessarily all the sources given.

Output the JSON object with the keys "question", "answer", and "sources":
`

const faithfulnessPrompt = `You will be given a set of sources, a question and an answer.

Your task is to rate the faithfulness of the answer. Please make sure you read and understand these instructions carefully.

Evaluation Criteria:
Faithfulness (1-5) - this evaluates whether the generated answer strictly adheres to the set of sources without introducing unsupported or contradicting claims.

Evaluation Steps:
1. Read the sources and question: Identify relevant information in the sources that directly addresses the question.
2. Compare the answer to the sources: Check if the answer strictly adheres to the sources and avoids unsupported or contradicting claims.
3. Assign a faithfulness score (1-5):
- 1: The answer misrepresents or contradicts the sources.
- 2: Contains multiple unsupported claims, errors, or contradictions.
- 3: Partially faithful with some unsupported claims or inaccuracies.
- 4: Mostly faithful with minor deviations.
- 5: Fully faithful and strictly adheres to the sources.

Set of sources:
----------
%s
----------

Question:
----------
%s
----------

Answer:
----------
%s
----------

Evaluation Form (output ONLY a single score - nothing else):
- Faithfulness:
`

const formalCheckPrompt = `You will be given a question, a guideline, and an answer.

Your task is to check whether the formal criteria of the question and answer are fulfilled.
The evaluation is based on the following criteria. All must be satisfied for the final result to be "yes".

Evaluation Criteria:
- Is the question free of references that could be misunderstood in the context of a full document? (e.g., the question does not refer vaguely to "the table")
- Is the question unambiguous and likely to have a deterministic answer? (disallowed are questions such as "What is one example for...?")
- Does the question align with the guideline? (do only judge clear misalignments, e.g. a yes/no question was not answered with "yes" or "no")

Question:
----------
%s
----------

Guideline:
----------
%s
----------

Answer:
----------
%s
----------

Instruction:
Answer only with "yes" or "no".
If all evaluation criteria are met, respond with "yes". Otherwise, respond with "no".

Your answer:
`

const answeringPrompt = `Your task is to answer the QUESTION with the given CONTEXT INFORMATION.

CONTEXT INFORMATION:
---------------------
%s
---------------------

QUESTION: %s

Given the CONTEXT INFORMATION and not prior knowledge, answer the QUESTION.

Follow the following guideline when answering the QUESTION:
%s
`

const correctnessPrompt = `You will be given a question, a proposed answer, and a ground truth answer.

Your task is to rate the correctness of the proposed answer. Please make sure you read and understand these instructions carefully.

Evaluation Criteria:
Correctness (1-5) - This evaluates whether the proposed answer is factually correct based on the ground truth. Your task is to determine if the proposed answer is aligned with and entailed by the ground truth answer.

Evaluation Steps:
1. Read the question and ground truth answer: Understand the key facts and details provided in the ground truth answer that are relevant to the question.
2. Compare the proposed answer to the ground truth answer: Check if the proposed answer is factually accurate, consistent, and aligned with the ground truth answer.
3. Assign a correctness score (1-5):
   - 1: The proposed answer is factually incorrect or contradicts the ground truth.
   - 2: The proposed answer contains multiple factual errors or significant inaccuracies.
   - 3: The proposed answer is partially correct but includes some factual errors or omissions.
   - 4: The proposed answer is mostly correct with minor factual deviations.
   - 5: The proposed answer is fully correct and strictly aligns with the ground truth.

Question:
-----
%s
-----

Ground Truth Answer:
-----
%s
-----

Proposed Answer:
-----
%s
-----

Evaluation Form (output ONLY a single score - nothing else):
- Correctness:
`
