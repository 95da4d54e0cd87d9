package classifier

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/ironsheep/deep-ocr/internal/labels"
)

// DefaultChunkSize bounds the number of patches handed to Predict at once.
const DefaultChunkSize = 32

type chunkTask struct {
	index int
	start int
	end   int
}

type chunkResult struct {
	index int
	seqs  []labels.Sequence
	err   error
}

// PredictChunked runs c.Predict over patches in fixed-size sub-batches and
// concatenates the results in input order.
//
// Chunking only bounds peak memory: the output is identical to one Predict
// call over the whole batch. With workers > 1 the chunks are predicted
// concurrently, which requires c.Predict to be safe for concurrent use; the
// results are still reassembled by chunk index.
func PredictChunked(ctx context.Context, c Classifier, patches []*image.NRGBA, chunkSize, workers int) ([]labels.Sequence, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if workers <= 0 {
		workers = 1
	}

	var tasks []chunkTask
	for start := 0; start < len(patches); start += chunkSize {
		end := start + chunkSize
		if end > len(patches) {
			end = len(patches)
		}
		tasks = append(tasks, chunkTask{index: len(tasks), start: start, end: end})
	}
	if len(tasks) == 0 {
		return []labels.Sequence{}, nil
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskChan := make(chan chunkTask, len(tasks))
	resultsChan := make(chan chunkResult, len(tasks))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				if err := ctx.Err(); err != nil {
					resultsChan <- chunkResult{index: task.index, err: err}
					continue
				}
				seqs, err := c.Predict(ctx, patches[task.start:task.end])
				if err == nil && len(seqs) != task.end-task.start {
					err = fmt.Errorf("classifier returned %d predictions for %d patches", len(seqs), task.end-task.start)
				}
				resultsChan <- chunkResult{index: task.index, seqs: seqs, err: err}
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)
	wg.Wait()
	close(resultsChan)

	ordered := make([][]labels.Sequence, len(tasks))
	for res := range resultsChan {
		if res.err != nil {
			return nil, fmt.Errorf("predict chunk %d: %w", res.index, res.err)
		}
		ordered[res.index] = res.seqs
	}

	out := make([]labels.Sequence, 0, len(patches))
	for _, seqs := range ordered {
		out = append(out, seqs...)
	}
	return out, nil
}
