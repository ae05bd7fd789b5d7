// Copyright 2026 Keepsake Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package export parses chat export files into ordered raw messages.
//
// Chat exports are noisy: they mix one-line message headers with
// continuation lines, system notices, locale-dependent timestamp
// formats, and invisible Unicode direction marks. The parser in this
// package recognizes the two WhatsApp export conventions (bracketed iOS
// style and dash-separated Android style), appends continuation lines to
// the previous message, drops system notices, and preserves message
// content byte-for-byte.
//
// The Scanner type provides a lazy, restartable sequence in the style of
// bufio.Scanner:
//
//	sc := export.NewParser().Scan(file, "conv-1")
//	for sc.Scan() {
//	    msg := sc.Message()
//	    ...
//	}
//	if err := sc.Err(); err != nil {
//	    ...
//	}
//
// Parse collects the whole export and additionally classifies the
// conversation as 1:1 or group, filling each message's recipient fields.
package export
