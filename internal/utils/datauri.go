package utils

import "encoding/base64"

// DataURI 把二进制内容编码为可直接嵌入页面的 data URI
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
