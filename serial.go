// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import "code.hybscloud.com/atomix"

// Serial numbers clients in creation order. It tags every log line of a
// client.
type Serial = uint32

var clients atomix.Uint32

func nextSerial() Serial {
	return clients.Add(1)
}
