// Package conversation drives a round-robin group conversation between a
// fixed list of personas.
//
// A Session starts with an opening message authored by the initiator and is
// advanced one round at a time. Each round is assigned to exactly one
// persona, in rotation, until the round limit is reached:
//
//	orch, err := conversation.New(provider, conversation.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	session, err := orch.StartSession(ctx, team, 6, "I have been feeling anxious lately")
//	if err != nil {
//	    return err
//	}
//
//	transcript, err := orch.RunToCompletion(ctx, session)
//
// The Provider is the only point where a language model is called. Adapters
// for hosted models live under conversation/model; ModelProvider bridges any
// model.ChatModel to Provider.
package conversation
