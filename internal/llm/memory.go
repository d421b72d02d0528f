package llm

import "context"

// Call records a single Generate invocation made against InMemoryClient.
type Call struct {
	SystemPrompt string
	UserContent  string
}

// InMemoryClient is a Client test double that records every call and
// returns a canned (or queued) response.
type InMemoryClient struct {
	Calls    []Call
	Response string
	queue    []string
}

// NewInMemoryClient returns an InMemoryClient with a default canned
// response of a non-clarifying "test answer" with no citations.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		Response: `{"answer":"test answer","citations":[],"needs_clarification":false,"clarifying_question":null}`,
	}
}

// Enqueue pushes a response to be returned by the next Generate calls, in
// order, before falling back to Response.
func (c *InMemoryClient) Enqueue(response string) {
	c.queue = append(c.queue, response)
}

// Generate implements Client.
func (c *InMemoryClient) Generate(ctx context.Context, systemPrompt, userContent string) (string, error) {
	c.Calls = append(c.Calls, Call{SystemPrompt: systemPrompt, UserContent: userContent})
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		return next, nil
	}
	return c.Response, nil
}
