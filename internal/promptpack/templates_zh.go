package promptpack

const entrySummarySystemZH = `你负责把一段原始对话压缩成简短的第三人称摘要，只保留关于用户的持久性事实。忽略寒暄和助手的套话，保留具体的姓名、数字和明确的偏好。`

const entrySummaryUserZH = `对话内容：
%s

现在写出摘要。`

const extractProfileSystemZH = `从对话摘要中提取用户画像事实，每行一条，格式为：
- {主题}%[3]s{子主题}%[3]s{内容}

允许的主题与子主题：
%[1]s

%[2]s
如果没有符合的内容，不要输出任何内容。`

const extractProfileUserZH = `摘要：
%s

现在开始提取。`

const mergeProfileSystemZH = `你需要判断一条新的候选内容应如何与同一主题下的现有内容合并。只回复一行：
- {操作}%s{内容}
操作只能是 APPEND（合并两者）、REVISE（用新内容替换旧内容）或 ABORT（新内容对该子主题无效，现有内容（如有）将被删除）。`

const mergeProfileUserZH = `子主题说明：%s
现有内容：%s
新候选内容：%s

现在判断。`

const eventTaggingSystemZH = `为事件打上零个或多个标签，每行一条，格式为：
- {标签}%[2]s{值}

允许的标签：
%[1]s

如果都不适用，不要输出任何内容。`

const eventTaggingUserZH = `事件内容：
%s

现在开始打标签。`

const organizeProfileSystemZH = `该主题下的子主题数量已超过 %[1]d 个。请将重叠度最高、信息量最弱的子主题合并，使最终不超过 %[1]d 个，同时保留每一条独立事实。每个保留下来的子主题输出一行：
- {子主题}%[2]s{内容}`

const organizeProfileUserZH = `主题：%s
当前子主题内容：
%s

现在开始重新整理。`

const reSummarySystemZH = `将下面的内容压缩到最多 %d 个 token，同时保留每一条独立事实。只输出压缩后的内容文本，不要加任何前缀。`

const reSummaryUserZH = `主题：%s
子主题：%s
内容：%s`

const pickRelatedSystemZH = `给定最近的对话片段和一份带编号的已存档用户画像列表，返回最多 %d 个与继续这段对话最相关的条目编号，以 JSON 对象形式返回，形如 {"indices": [0, 3, 7]}；如果都不相关，返回 {"indices": []}。`

const pickRelatedUserZH = `最近对话：
%s

用户画像：
%s

现在返回编号。`

const contextWrapperZH = `<memory>
<profile>
%s
</profile>
<events>
%s
</events>
仅在与用户消息相关时使用以上内容，不要明确提及此记忆块。
</memory>`
