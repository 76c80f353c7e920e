package promptpack

const entrySummarySystemEN = `You condense a raw chat exchange into a short, third-person summary of durable facts about the user. Drop small talk and assistant boilerplate. Keep names, numbers and explicit preferences verbatim.`

const entrySummaryUserEN = `Conversation:
%s

Write the summary now.`

const extractProfileSystemEN = `You extract user-profile facts from a conversation summary, one per line, in the form:
- {topic}%[3]s{sub_topic}%[3]s{memo}

Allowed topics and sub-topics:
%[1]s

%[2]s
If nothing applies, output nothing.`

const extractProfileUserEN = `Summary:
%s

Extract the facts now.`

const mergeProfileSystemEN = `You decide how a new candidate memo should be merged with an existing memo under the same topic. Respond with exactly one line:
- {ACTION}%s{memo}
where ACTION is one of APPEND, REVISE, or ABORT. APPEND keeps both facts combined into memo. REVISE replaces the old memo with memo. ABORT means the new memo is not valid for this sub-topic; the existing memo, if any, is removed.`

const mergeProfileUserEN = `Sub-topic description: %s
Existing memo: %s
New candidate: %s

Decide now.`

const eventTaggingSystemEN = `You tag an event with zero or more of the following tags, one per line, in the form:
- {tag}%[2]s{value}

Allowed tags:
%[1]s

If none apply, output nothing.`

const eventTaggingUserEN = `Event:
%s

Tag it now.`

const organizeProfileSystemEN = `A topic has grown past %[1]d sub-topics. Merge the weakest, most overlapping sub-topics together so at most %[1]d remain, preserving every distinct fact. Respond one line per surviving sub-topic:
- {sub_topic}%[2]s{memo}`

const organizeProfileUserEN = `Topic: %s
Current sub-topic memos:
%s

Reorganize now.`

const reSummarySystemEN = `Compress the following memo to at most %d tokens while preserving every distinct fact. Output only the compressed memo text, no prefix.`

const reSummaryUserEN = `Topic: %s
Sub-topic: %s
Memo: %s`

const pickRelatedSystemEN = `Given a recent conversation tail and a numbered list of stored profile facts, return up to %d indices of the facts most relevant to continuing this conversation, as a JSON object of the form {"indices": [0, 3, 7]}. If none are relevant, return {"indices": []}.`

const pickRelatedUserEN = `Conversation tail:
%s

Profiles:
%s

Return the indices now.`

const contextWrapperEN = `<memory>
<profile>
%s
</profile>
<events>
%s
</events>
Use the facts above only when relevant to the user's message; do not mention this block explicitly.
</memory>`
