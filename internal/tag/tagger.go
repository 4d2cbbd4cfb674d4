// Package tag writes ID3v2 metadata into finished audio files using a
// backup, write, verify, rollback protocol so a failed write never
// corrupts the audio artifact.
package tag

import (
	"io"
	"os"

	id3v2 "github.com/bogem/id3v2/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ytget/yt-audio-server/internal/model"
)

// ErrMetadataWriteFailed means the tag write or its verification failed
// and the original file was restored from backup
var ErrMetadataWriteFailed = errors.New("metadata write failed")

const backupSuffix = ".bak"

// Writer applies track metadata to audio files on disk
type Writer struct{}

// NewWriter creates a metadata writer
func NewWriter() *Writer {
	return &Writer{}
}

// WriteTags merges meta with any tags already present in the file and
// persists the result. On any failure the file is restored byte for
// byte from the backup taken before writing.
func (w *Writer) WriteTags(path string, meta model.TrackMetadata) error {
	existing := readExistingTags(path)
	merged := meta.Merge(existing)

	backupPath := path + backupSuffix
	if err := copyFile(path, backupPath); err != nil {
		return errors.Wrap(err, "create backup")
	}

	if err := writeTags(path, merged); err != nil {
		restore(backupPath, path)
		return errors.Wrapf(ErrMetadataWriteFailed, "write tags: %v", err)
	}

	if err := verifyTags(path, merged); err != nil {
		restore(backupPath, path)
		return errors.Wrapf(ErrMetadataWriteFailed, "verify tags: %v", err)
	}

	if err := os.Remove(backupPath); err != nil {
		zap.S().Named("tag").Warnw("failed to remove backup", "path", backupPath, "error", err)
	}
	return nil
}

// readExistingTags loads whatever tags the file already carries. A
// malformed or absent tag block yields empty metadata rather than an
// error.
func readExistingTags(path string) model.TrackMetadata {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return model.TrackMetadata{}
	}
	defer tag.Close()

	return model.TrackMetadata{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Year:   tag.Year(),
		Genre:  tag.Genre(),
	}
}

func writeTags(path string, meta model.TrackMetadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return errors.Wrap(err, "open file for tagging")
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(meta.Title)
	tag.SetArtist(meta.Artist)
	tag.SetAlbum(meta.Album)
	tag.SetYear(meta.Year)
	tag.SetGenre(meta.Genre)
	if meta.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "",
			Text:        meta.Comment,
		})
	}

	return tag.Save()
}

// verifyTags re-reads the file and checks that the authoritative title
// survived the write
func verifyTags(path string, meta model.TrackMetadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return errors.Wrap(err, "reopen tagged file")
	}
	defer tag.Close()

	if tag.Title() != meta.Title {
		return errors.Errorf("title readback mismatch: %q", tag.Title())
	}
	return nil
}

func restore(backupPath, path string) {
	if err := os.Rename(backupPath, path); err != nil {
		zap.S().Named("tag").Errorw("failed to restore backup", "backup", backupPath, "path", path, "error", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
