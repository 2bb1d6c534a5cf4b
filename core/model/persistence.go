package model

import (
	"encoding/json"
	"io"
	"os"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// DocumentVersion は保存形式のバージョン（互換性チェック用）
const DocumentVersion = "1"

// ModelDocument は学習済みモデルの保存形式
type ModelDocument struct {
	// ModelType はモデルの種類（gbm.Regressor等）
	ModelType string `json:"model_type"`

	Version string `json:"version"`

	// Features は学習時の列名（列順）
	Features []string `json:"features,omitempty"`

	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata は価格帯名や評価指標などの付加情報
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Payload はモデル固有の学習結果
	Payload json.RawMessage `json:"payload"`
}

// Exporter は保存形式に変換できるモデルのインターフェース
type Exporter interface {
	ExportModel() (*ModelDocument, error)
}

// SaveModel はモデル文書をJSONファイルに保存する
//
// 使用例:
//
//	doc, err := reg.ExportModel()
//	// ...
//	err = model.SaveModel(doc, "models/mid.json")
func SaveModel(doc *ModelDocument, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", filename)
		}
	}()
	return SaveModelToWriter(doc, file)
}

// LoadModel はJSONファイルからモデル文書を読み込む
func LoadModel(filename string) (*ModelDocument, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()
	return LoadModelFromReader(file)
}

// SaveModelToWriter はモデル文書をio.Writerに書き出す
func SaveModelToWriter(doc *ModelDocument, w io.Writer) error {
	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデル文書を読み込む
func LoadModelFromReader(r io.Reader) (*ModelDocument, error) {
	var doc ModelDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}
	if doc.Version != DocumentVersion {
		return nil, errors.NewValueError("LoadModel", "unsupported model version "+doc.Version)
	}
	return &doc, nil
}
