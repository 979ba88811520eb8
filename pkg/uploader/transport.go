// Copyright 2026 LiveKit, Inc.
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

package uploader

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/livekit/storage"
)

// proxyClient returns nil when no proxy is configured.
func proxyClient(conf *storage.ProxyConfig) (*http.Client, error) {
	if conf == nil {
		return nil, nil
	}

	proxyURL, err := url.Parse(conf.Url)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	if conf.Username != "" && conf.Password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(conf.Username + ":" + conf.Password))
		transport.ProxyConnectHeader = http.Header{}
		transport.ProxyConnectHeader.Add("Proxy-Authorization", "Basic "+auth)
	}
	return &http.Client{Transport: transport}, nil
}
