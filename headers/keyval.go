package headers

import "fmt"

func readKey(origstr, str string, separator byte) (string, string, error) {
	i := 0
	for {
		if i >= len(str) || str[i] == separator {
			return "", "", fmt.Errorf("unable to read key (%v)", origstr)
		}
		if str[i] == '=' {
			break
		}
		i++
	}
	return str[:i], str[i+1:], nil
}

func readValue(origstr, str string, separator byte) (string, string, error) {
	if len(str) > 0 && str[0] == '"' {
		i := 1
		for {
			if i >= len(str) {
				return "", "", fmt.Errorf("quotes not closed (%v)", origstr)
			}
			if str[i] == '"' {
				return str[1:i], str[i+1:], nil
			}
			i++
		}
	}

	i := 0
	for {
		if i >= len(str) || str[i] == separator {
			return str[:i], str[i:], nil
		}
		i++
	}
}

// keyValParse parses a comma-separated list of key=value or key="value"
// pairs, as found in WWW-Authenticate and Authorization headers.
func keyValParse(str string, separator byte) (map[string]string, error) {
	ret := make(map[string]string)
	origstr := str

	for len(str) > 0 {
		var k, v string
		var err error

		k, str, err = readKey(origstr, str, separator)
		if err != nil {
			return nil, err
		}

		v, str, err = readValue(origstr, str, separator)
		if err != nil {
			return nil, err
		}

		ret[k] = v

		if len(str) > 0 && str[0] == separator {
			str = str[1:]
		}
		for len(str) > 0 && str[0] == ' ' {
			str = str[1:]
		}
	}

	return ret, nil
}
