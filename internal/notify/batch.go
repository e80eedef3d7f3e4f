package notify

// Batches is the outcome of packing rendered items into messages.
type Batches struct {
	Messages []string
	// Dropped holds the input indices of items that cannot fit any message.
	Dropped []int
}

// Batch packs items greedily, left to right, into messages whose effective
// length stays within limit. An item is never split: it either joins the
// current message, starts the next one, or is dropped when it alone exceeds
// limit. The trailing partial message is always flushed.
func Batch(items []string, limit int) Batches {
	var (
		out Batches
		cur string
	)
	for i, item := range items {
		if EffectiveLength(item) > limit {
			out.Dropped = append(out.Dropped, i)
			continue
		}
		if cur == "" {
			cur = item
			continue
		}
		if next := cur + item; EffectiveLength(next) <= limit {
			cur = next
			continue
		}
		out.Messages = append(out.Messages, cur)
		cur = item
	}
	if cur != "" {
		out.Messages = append(out.Messages, cur)
	}
	return out
}
