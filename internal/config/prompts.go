package config

// DefaultUserAgent is sent with every source fetch; some wikis reject bare Go clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultRefusalMessage is returned whenever the context cannot support an answer.
const DefaultRefusalMessage = "제가 가진 정보로는 답변하기 어렵습니다"

// DefaultSystemPrompt is the grounding instruction of the baseball assistant.
// {{.Refusal}} and {{.Context}} are filled in by the answer generator.
const DefaultSystemPrompt = `당신은 야구 전문가입니다. 주어진 컨텍스트를 바탕으로 사용자의 질문에 정확하게 답변해주세요.
답변할 때는 다음 규칙을 따르세요:
1. 컨텍스트에 있는 정보만 사용하세요
2. 컨텍스트에 없는 내용은 "{{.Refusal}}"라고 말씀해주세요
3. 답변은 친절하고 자연스러운 한국어로 작성해주세요

컨텍스트:
{{.Context}}`
