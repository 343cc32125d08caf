package kafkaconsumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// claimHandler feeds each claimed partition through apply in offset order.
// A message is marked only after apply succeeds, so a failed cache bump is
// redelivered after the next rebalance.
type claimHandler struct {
	apply func(context.Context, *sarama.ConsumerMessage) error
	log   *slog.Logger
}

func (h *claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log.InfoContext(sess.Context(), "invalidation partitions assigned",
		"claims", sess.Claims(), "generation", sess.GenerationID())
	return nil
}

func (h *claimHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.log.DebugContext(sess.Context(), "invalidation partitions released", "member", sess.MemberID())
	return nil
}

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	msgs := claim.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := h.apply(ctx, msg); err != nil {
				return fmt.Errorf("%s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
