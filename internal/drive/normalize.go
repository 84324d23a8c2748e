package drive

import (
	"bytes"
	"strconv"
	"strings"
)

// EscapeName substitutes the path separator inside an entry name with a
// fixed placeholder so full paths built from it stay unambiguous.
func EscapeName(name string) string {
	return strings.ReplaceAll(name, "/", "|")
}

// flexInt decodes a JSON number or a numeric JSON string. The web endpoints
// return sizes and timestamps as numbers, the app endpoints as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Some timestamps arrive as "2006-01-02 15:04" display strings;
		// callers treat 0 as unknown.
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// RawEntry is one provider listing entry before normalization. The two
// mirror families return different shapes: the web endpoint uses short keys
// (fid/cid/n/s), the app endpoints use long keys (file_id/file_name/...).
// A directory carries cid but no fid on the web shape, and file_category 0
// on the app shape.
type RawEntry struct {
	FileID     string  `json:"fid"`
	CategoryID string  `json:"cid"`
	ParentID   string  `json:"pid"`
	Name       string  `json:"n"`
	Size       flexInt `json:"s"`
	PickCode   string  `json:"pc"`
	UpdateTime flexInt `json:"te"`
	PutTime    flexInt `json:"tp"`

	AppFileID       string   `json:"file_id"`
	AppCategoryID   string   `json:"category_id"`
	AppName         string   `json:"file_name"`
	AppSize         flexInt  `json:"file_size"`
	AppPickCode     string   `json:"pick_code"`
	AppFileCategory *flexInt `json:"file_category"`
	AppPutTime      flexInt  `json:"user_ptime"`
	AppUpdateTime   flexInt  `json:"user_utime"`
}

// Entry is the normalized attribute shape shared by both mirror families.
type Entry struct {
	ID         string
	ParentID   string
	Name       string
	IsDir      bool
	Size       int64
	PickCode   string
	CreateTime int64
	ModifyTime int64
}

// Normalize maps a raw entry onto the common attribute shape and escapes
// the path separator inside the name.
func Normalize(raw RawEntry) Entry {
	e := Entry{}
	switch {
	case raw.AppFileID != "" || raw.AppName != "":
		e.ID = raw.AppFileID
		e.ParentID = raw.AppCategoryID
		e.Name = raw.AppName
		e.Size = int64(raw.AppSize)
		e.PickCode = raw.AppPickCode
		e.CreateTime = int64(raw.AppPutTime)
		e.ModifyTime = int64(raw.AppUpdateTime)
		e.IsDir = raw.AppFileCategory != nil && *raw.AppFileCategory == 0
	default:
		e.Name = raw.Name
		e.Size = int64(raw.Size)
		e.PickCode = raw.PickCode
		e.CreateTime = int64(raw.PutTime)
		e.ModifyTime = int64(raw.UpdateTime)
		if raw.FileID == "" {
			// Directories carry only a category id on the web shape.
			e.IsDir = true
			e.ID = raw.CategoryID
			e.ParentID = raw.ParentID
		} else {
			e.ID = raw.FileID
			e.ParentID = raw.CategoryID
		}
	}
	e.Name = EscapeName(e.Name)
	return e
}
