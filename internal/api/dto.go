package api

type CheckpointInfo struct {
	ID          string      `json:"id"`
	Path        string      `json:"path"`
	Revision    string      `json:"revision"`
	Hparams     HparamsInfo `json:"hyperparameters"`
	TensorCount int         `json:"tensor_count"`
	VocabCount  int         `json:"vocab_count"`
}

type HparamsInfo struct {
	NVocab   int32 `json:"n_vocab"`
	NEmbd    int32 `json:"n_embd"`
	NMult    int32 `json:"n_mult"`
	NHead    int32 `json:"n_head"`
	NLayer   int32 `json:"n_layer"`
	NRot     int32 `json:"n_rot"`
	FileType int32 `json:"file_type"`
}

type TensorList struct {
	Tensors []TensorSummary `json:"tensors"`
}

type TensorSummary struct {
	Name        string `json:"name"`
	Dims        []int  `json:"dims"`
	Type        string `json:"type"`
	Elements    int    `json:"elements"`
	Bytes       int    `json:"bytes"`
	StartOffset int64  `json:"start_offset"`
	Digest      string `json:"digest,omitempty"`
}

type VocabList struct {
	Total   int         `json:"total"`
	Entries []VocabItem `json:"entries"`
}

type VocabItem struct {
	Index int     `json:"index"`
	Token string  `json:"token"`
	Score float32 `json:"score"`
}

type ErrorBody struct {
	Error string `json:"error"`
}
