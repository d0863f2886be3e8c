package transfer

// chunk is one inclusive byte range of a chunked download.
type chunk struct {
	start int64
	end   int64
}

func (c chunk) length() int64 {
	return c.end - c.start + 1
}

// chunkPlan splits size bytes into ranges of at most chunkSize each.
func chunkPlan(size, chunkSize int64) []chunk {
	if size <= 0 {
		return nil
	}
	chunks := make([]chunk, 0, (size+chunkSize-1)/chunkSize)
	for start := int64(0); start < size; start += chunkSize {
		end := start + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		chunks = append(chunks, chunk{start: start, end: end})
	}
	return chunks
}
