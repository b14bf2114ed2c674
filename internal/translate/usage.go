package translate

// NormalizeUsage converts OpenAI token accounting to Anthropic's: OpenAI
// prompt_tokens includes cached tokens, Anthropic input_tokens excludes
// cache reads and reports them separately.
func NormalizeUsage(u *ChatUsage) Usage {
	if u == nil {
		return Usage{}
	}

	in := u.PromptTokens
	if in < 0 {
		in = 0
	}
	out := u.CompletionTokens
	if out < 0 {
		out = 0
	}

	cached := 0
	if u.PromptTokensDetails != nil {
		cached = u.PromptTokensDetails.CachedTokens
	}
	if cached < 0 {
		cached = 0
	}
	if cached > in {
		cached = in
	}

	return Usage{
		InputTokens:          in - cached,
		OutputTokens:         out,
		CacheReadInputTokens: cached,
	}
}
