package web

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// maxUploadBytes bounds the multipart body the chat/preview endpoints will
// parse into memory before spilling to temp files.
const maxUploadBytes = 20 * 1024 * 1024

// saveUploadedFile reads the "file" part of a multipart request, if any,
// and writes it to dir under name. Returns "" with a nil error when the
// request carried no file.
func saveUploadedFile(r *http.Request, dir, name string) (string, error) {
	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+filepath.Ext(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return path, nil
}

// readUploadedFile reads an uploaded file's bytes fully into memory,
// without persisting it — used by the preview endpoint, which never needs
// the file again after inspecting it.
func readUploadedFile(r *http.Request) ([]byte, *multipart.FileHeader, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}
